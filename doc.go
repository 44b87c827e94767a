// Package oidc provides the shared wire types, protocol constants, and error
// values for the token-issuance core of an OpenID Connect Provider.
//
// The core business logic lives in the server package; this package holds the
// pieces shared between the server, storage, and transport layers:
//   - JSON wire types for token, introspection, and registration responses
//   - OAuth 2.0 / OIDC protocol constants (grant types, auth methods, PKCE)
//   - OAuthError, the typed error value returned by all protocol operations
//
// See the server package for usage.
package oidc
