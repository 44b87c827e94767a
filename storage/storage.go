// Package storage defines interfaces for persisting authorization codes,
// tokens, clients, and sessions for the OpenID Provider core.
// It supports various backend implementations; the memory subpackage provides
// the in-memory default.
package storage

import (
	"context"
	"time"
)

// CodeStore defines the interface for authorization code persistence.
// All methods accept context.Context for tracing and cancellation.
type CodeStore interface {
	// SaveAuthorizationCode saves an issued authorization code
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeAuthorizationCode atomically retrieves and deletes an
	// authorization code. A second call for the same code value returns
	// ErrAuthorizationCodeNotFound, exactly as if the code never existed.
	// SECURITY: This operation MUST be atomic to prevent concurrent code
	// exchange attacks where two token-endpoint calls redeem one code.
	ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

// TokenStore defines the interface for access and refresh token metadata.
// Both opaque and JWT-format access tokens are recorded here, keyed by
// token value, so introspection and revocation work uniformly.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveAccessToken records access token metadata keyed by token value
	SaveAccessToken(ctx context.Context, token *Token) error

	// GetAccessToken retrieves access token metadata by value
	GetAccessToken(ctx context.Context, value string) (*Token, error)

	// SaveRefreshToken records refresh token metadata keyed by token value
	SaveRefreshToken(ctx context.Context, token *Token) error

	// GetRefreshToken retrieves refresh token metadata by value
	GetRefreshToken(ctx context.Context, value string) (*Token, error)

	// DeleteRefreshToken removes a refresh token (used for rotation)
	DeleteRefreshToken(ctx context.Context, value string) error

	// RevokeToken removes the access or refresh token with the given value.
	// Unknown values are not an error (RFC 7009 anti-probing).
	RevokeToken(ctx context.Context, value string) error
}

// ClientStore defines the interface for managing registered clients.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient saves a registered client
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ListClients lists all registered clients
	ListClients(ctx context.Context) ([]*Client, error)
}

// SessionStore resolves an authenticated session to its claims.
// The provider core only reads sessions; creating and destroying them is the
// responsibility of the authentication layer.
type SessionStore interface {
	// GetSession retrieves the claims of a session, or ErrSessionNotFound
	GetSession(ctx context.Context, sessionID string) (map[string]any, error)
}

// Client represents a registered OAuth/OIDC client (relying party)
type Client struct {
	ID string

	// Secret is the raw client secret. Required for client_secret_jwt,
	// where the secret is the HMAC key and a hash would not suffice.
	Secret string

	// SecretHash is a bcrypt hash of the secret, set instead of Secret by
	// dynamic registration when the auth method never needs the raw value.
	SecretHash string

	RedirectURIs            []string
	PostLogoutRedirectURIs  []string
	TokenEndpointAuthMethod string
	GrantTypes              []string
	ResponseTypes           []string
	ClientName              string
	Scopes                  []string

	// RequirePKCE forces a code_challenge on every authorization request.
	RequirePKCE bool
	// AllowPlainPKCE permits the "plain" challenge method. S256 is always allowed.
	AllowPlainPKCE bool

	// AccessTokenFormat is "opaque" (default) or "jwt".
	AccessTokenFormat string

	// Per-client TTL overrides in seconds. Zero means use the service default.
	AuthorizationCodeTTL int64
	AccessTokenTTL       int64
	RefreshTokenTTL      int64
	IDTokenTTL           int64

	// JWKS resolution for private_key_jwt and token encryption.
	// JWKSURI takes precedence over the inline JWKS document.
	JWKSURI string
	JWKS    string

	// ID token signing and optional encryption.
	IDTokenSignedResponseAlg    string
	IDTokenEncryptedResponseAlg string
	IDTokenEncryptedResponseEnc string

	// UserInfo response encryption.
	UserinfoEncryptedResponseAlg string
	UserinfoEncryptedResponseEnc string

	// Logout configuration.
	BackchannelLogoutURI              string
	BackchannelLogoutSessionRequired  bool
	FrontchannelLogoutURI             string
	FrontchannelLogoutSessionRequired bool

	// AllowClientCredentials explicitly enables the client_credentials grant.
	AllowClientCredentials bool

	// AllowOfflineAccess controls refresh token issuance. Nil means allowed;
	// only an explicit false suppresses refresh tokens.
	AllowOfflineAccess *bool

	// RotateRefreshTokens deletes the presented refresh token before reissue.
	RotateRefreshTokens bool

	// BypassConsent skips the consent confirmation step for this client.
	BypassConsent bool

	// ClaimsMapping maps ID-token claim names to session attribute names.
	ClaimsMapping map[string]string

	CreatedAt time.Time
}

// AuthorizationCode represents an issued authorization code
type AuthorizationCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	Scope               string
	UserID              string
	SessionID           string
	Nonce               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	AuthTime            time.Time
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// Token type discriminators for Token.TokenType.
const (
	TokenTypeAccess  = "access_token"
	TokenTypeRefresh = "refresh_token"
)

// Token is the metadata record kept for an issued access or refresh token,
// keyed by token value. ID tokens are never persisted.
type Token struct {
	Value     string
	TokenType string // TokenTypeAccess or TokenTypeRefresh
	ClientID  string
	UserID    string
	SessionID string
	Scope     string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
