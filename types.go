package oidc

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`

	// ErrorURI points to error documentation
	ErrorURI string `json:"error_uri,omitempty"`
}

// ProviderMetadata represents OpenID Provider discovery metadata
// (OIDC Discovery 1.0 / RFC 8414 subset).
type ProviderMetadata struct {
	// Issuer is the provider's issuer identifier URL
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint
	TokenEndpoint string `json:"token_endpoint"`

	// UserinfoEndpoint is the URL of the UserInfo endpoint
	UserinfoEndpoint string `json:"userinfo_endpoint,omitempty"`

	// JWKSURI is the URL of the provider's JWK Set document
	JWKSURI string `json:"jwks_uri,omitempty"`

	// RegistrationEndpoint is the URL of the dynamic client registration
	// endpoint (RFC 7591). Only set when dynamic registration is enabled.
	RegistrationEndpoint string `json:"registration_endpoint,omitempty"`

	// EndSessionEndpoint is the URL of the RP-initiated logout endpoint
	EndSessionEndpoint string `json:"end_session_endpoint,omitempty"`

	// RevocationEndpoint is the URL of the token revocation endpoint (RFC 7009)
	RevocationEndpoint string `json:"revocation_endpoint,omitempty"`

	// IntrospectionEndpoint is the URL of the token introspection endpoint (RFC 7662)
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty"`

	// ScopesSupported lists the OAuth scopes supported
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// ResponseTypesSupported lists the OAuth response types supported
	ResponseTypesSupported []string `json:"response_types_supported"`

	// GrantTypesSupported lists the OAuth grant types supported
	GrantTypesSupported []string `json:"grant_types_supported,omitempty"`

	// TokenEndpointAuthMethodsSupported lists the client authentication methods supported at the token endpoint
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`

	// CodeChallengeMethodsSupported lists the PKCE code challenge methods supported
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`

	// IDTokenSigningAlgValuesSupported lists the JWS algorithms supported for ID tokens
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported,omitempty"`

	// BackchannelLogoutSupported indicates back-channel logout support
	BackchannelLogoutSupported bool `json:"backchannel_logout_supported,omitempty"`

	// BackchannelLogoutSessionSupported indicates sid claim support in logout tokens
	BackchannelLogoutSessionSupported bool `json:"backchannel_logout_session_supported,omitempty"`

	// FrontchannelLogoutSupported indicates front-channel logout support
	FrontchannelLogoutSupported bool `json:"frontchannel_logout_supported,omitempty"`
}

// TokenResponse represents an OAuth 2.0 / OIDC token response
type TokenResponse struct {
	// AccessToken is the access token
	AccessToken string `json:"access_token"`

	// TokenType is the type of token (always "Bearer")
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// IDToken is the OIDC ID token (signed, optionally encrypted)
	IDToken string `json:"id_token,omitempty"`

	// RefreshToken is the refresh token (optional)
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the scope of the access token
	Scope string `json:"scope,omitempty"`
}

// IntrospectionResponse represents an OAuth 2.0 token introspection
// response (RFC 7662).
type IntrospectionResponse struct {
	// Active indicates whether the token is currently valid
	Active bool `json:"active"`

	// Scope is the space-separated scope of the token
	Scope string `json:"scope,omitempty"`

	// ClientID is the client the token was issued to
	ClientID string `json:"client_id,omitempty"`

	// Sub is the subject of the token
	Sub string `json:"sub,omitempty"`

	// TokenType is "access_token" or "refresh_token"
	TokenType string `json:"token_type,omitempty"`

	// Exp is the expiration time as a Unix timestamp
	Exp int64 `json:"exp,omitempty"`

	// Iat is the issuance time as a Unix timestamp
	Iat int64 `json:"iat,omitempty"`

	// Jti is the token identifier
	Jti string `json:"jti,omitempty"`

	// Iss is the issuer of the token
	Iss string `json:"iss,omitempty"`
}

// ==================== Dynamic Client Registration (RFC 7591) Types ====================

// ClientRegistrationRequest represents a dynamic client registration request.
// Fields cover the RFC 7591 core metadata plus the OIDC registration
// parameters this provider understands (encryption, logout, JWKS).
type ClientRegistrationRequest struct {
	// RedirectURIs is the array of redirection URIs for use in redirect-based flows
	RedirectURIs []string `json:"redirect_uris,omitempty"`

	// PostLogoutRedirectURIs lists URIs the user may be sent to after logout
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris,omitempty"`

	// TokenEndpointAuthMethod is the requested authentication method for the token endpoint
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method,omitempty"`

	// GrantTypes is the array of OAuth 2.0 grant types the client will use
	GrantTypes []string `json:"grant_types,omitempty"`

	// ResponseTypes is the array of OAuth 2.0 response types the client will use
	ResponseTypes []string `json:"response_types,omitempty"`

	// ClientName is the human-readable name of the client
	ClientName string `json:"client_name,omitempty"`

	// ClientURI is the URL of the client's home page
	ClientURI string `json:"client_uri,omitempty"`

	// Scope is the space-separated list of scope values
	Scope string `json:"scope,omitempty"`

	// ApplicationType is "web" or "native"
	ApplicationType string `json:"application_type,omitempty"`

	// JWKSURI is the URL of the client's JWK Set document
	JWKSURI string `json:"jwks_uri,omitempty"`

	// JWKS is the client's JWK Set document passed by value
	JWKS string `json:"jwks,omitempty"`

	// IDTokenSignedResponseAlg is the requested ID-token signing algorithm
	IDTokenSignedResponseAlg string `json:"id_token_signed_response_alg,omitempty"`

	// IDTokenEncryptedResponseAlg is the JWE key-management algorithm for ID tokens
	IDTokenEncryptedResponseAlg string `json:"id_token_encrypted_response_alg,omitempty"`

	// IDTokenEncryptedResponseEnc is the JWE content-encryption algorithm for ID tokens
	IDTokenEncryptedResponseEnc string `json:"id_token_encrypted_response_enc,omitempty"`

	// UserinfoEncryptedResponseAlg is the JWE key-management algorithm for UserInfo responses
	UserinfoEncryptedResponseAlg string `json:"userinfo_encrypted_response_alg,omitempty"`

	// UserinfoEncryptedResponseEnc is the JWE content-encryption algorithm for UserInfo responses
	UserinfoEncryptedResponseEnc string `json:"userinfo_encrypted_response_enc,omitempty"`

	// BackchannelLogoutURI is the client's back-channel logout endpoint
	BackchannelLogoutURI string `json:"backchannel_logout_uri,omitempty"`

	// BackchannelLogoutSessionRequired requests a sid claim in logout tokens
	BackchannelLogoutSessionRequired bool `json:"backchannel_logout_session_required,omitempty"`

	// FrontchannelLogoutURI is the client's front-channel logout page
	FrontchannelLogoutURI string `json:"frontchannel_logout_uri,omitempty"`

	// FrontchannelLogoutSessionRequired requests iss/sid parameters on the front-channel URI
	FrontchannelLogoutSessionRequired bool `json:"frontchannel_logout_session_required,omitempty"`
}

// ClientRegistrationResponse represents a dynamic client registration response
type ClientRegistrationResponse struct {
	// ClientID is the unique client identifier
	ClientID string `json:"client_id"`

	// ClientSecret is the client secret (for confidential clients)
	ClientSecret string `json:"client_secret,omitempty"`

	// ClientIDIssuedAt is the time the client_id was issued
	ClientIDIssuedAt int64 `json:"client_id_issued_at,omitempty"`

	// ClientSecretExpiresAt is when the client_secret expires (0 = never)
	ClientSecretExpiresAt int64 `json:"client_secret_expires_at"`

	// RedirectURIs is the array of redirection URIs
	RedirectURIs []string `json:"redirect_uris,omitempty"`

	// PostLogoutRedirectURIs lists URIs the user may be sent to after logout
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris,omitempty"`

	// TokenEndpointAuthMethod is the authentication method for the token endpoint
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method,omitempty"`

	// GrantTypes is the array of OAuth 2.0 grant types
	GrantTypes []string `json:"grant_types,omitempty"`

	// ResponseTypes is the array of OAuth 2.0 response types
	ResponseTypes []string `json:"response_types,omitempty"`

	// ClientName is the human-readable name of the client
	ClientName string `json:"client_name,omitempty"`

	// Scope is the space-separated list of scope values
	Scope string `json:"scope,omitempty"`

	// IDTokenSignedResponseAlg is the ID-token signing algorithm in effect
	IDTokenSignedResponseAlg string `json:"id_token_signed_response_alg,omitempty"`

	// IDTokenEncryptedResponseAlg is the JWE key-management algorithm for ID tokens
	IDTokenEncryptedResponseAlg string `json:"id_token_encrypted_response_alg,omitempty"`

	// IDTokenEncryptedResponseEnc is the JWE content-encryption algorithm for ID tokens
	IDTokenEncryptedResponseEnc string `json:"id_token_encrypted_response_enc,omitempty"`

	// BackchannelLogoutURI is the client's back-channel logout endpoint
	BackchannelLogoutURI string `json:"backchannel_logout_uri,omitempty"`

	// FrontchannelLogoutURI is the client's front-channel logout page
	FrontchannelLogoutURI string `json:"frontchannel_logout_uri,omitempty"`
}
