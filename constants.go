package oidc

// Grant type values accepted at the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
)

// Response type values accepted at the authorization endpoint.
const (
	ResponseTypeCode    = "code"
	ResponseTypeToken   = "token"
	ResponseTypeIDToken = "id_token"
)

// Token endpoint client authentication methods (OIDC Core 9).
const (
	AuthMethodNone              = "none"
	AuthMethodClientSecretBasic = "client_secret_basic"
	AuthMethodClientSecretPost  = "client_secret_post"
	AuthMethodClientSecretJWT   = "client_secret_jwt"
	AuthMethodPrivateKeyJWT     = "private_key_jwt"
)

// PKCE code challenge methods (RFC 7636).
const (
	CodeChallengeMethodS256  = "S256"
	CodeChallengeMethodPlain = "plain"
)

// Access token representations a client may be configured for.
const (
	AccessTokenFormatOpaque = "opaque"
	AccessTokenFormatJWT    = "jwt"
)

const (
	// TokenTypeBearer is the token_type value of every token response.
	TokenTypeBearer = "Bearer"

	// ScopeOpenID is the scope every OIDC authorization request must carry.
	ScopeOpenID = "openid"

	// ScopeOfflineAccess requests a refresh token.
	ScopeOfflineAccess = "offline_access"

	// ClientAssertionTypeJWTBearer is the fixed client_assertion_type value
	// for the JWT-assertion client authentication methods (RFC 7523).
	ClientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// BackchannelLogoutEvent is the member name of the events claim in a
	// back-channel logout token (OIDC Back-Channel Logout 1.0, section 2.4).
	BackchannelLogoutEvent = "http://schemas.openid.net/event/backchannel-logout"
)
