// Package server implements the token-issuance core of the OpenID Provider.
//
// The Server coordinates the protocol state machine: validating authorization
// requests, issuing one-time authorization codes, handling the token endpoint
// grants (authorization_code, refresh_token, client_credentials),
// authenticating clients across the five token-endpoint methods, assembling
// and signing ID tokens, best-effort JWE encryption of ID tokens, RFC 7662
// introspection, RFC 7009 revocation, RFC 7591 dynamic client registration,
// and back-/front-channel logout.
//
// The HTTP layer is out of scope: callers extract parameters from requests
// and render the returned wire types (oidc.TokenResponse, oidc.ErrorResponse)
// themselves. Grant handlers return *oidc.OAuthError values carrying the
// protocol error code and an HTTP status, never raw internal errors.
package server
