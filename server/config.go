package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Hardcoded TTL fallbacks, used when neither the client nor the service
// configures an override.
const (
	DefaultAuthorizationCodeTTL = 60      // 1 minute
	DefaultAccessTokenTTL       = 3600    // 1 hour
	DefaultIDTokenTTL           = 3600    // 1 hour
	DefaultRefreshTokenTTL      = 2592000 // 30 days
	DefaultLogoutTokenTTL       = 120     // 2 minutes
)

// Flows controls which authorization flows the provider accepts.
type Flows struct {
	// AuthorizationCode enables response_type=code
	AuthorizationCode bool

	// Implicit enables response_type=token
	Implicit bool

	// Hybrid enables response_type=id_token (and combinations)
	Hybrid bool
}

// Config holds provider configuration
type Config struct {
	// Issuer is the provider's issuer identifier (base URL). Required.
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 60

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid
	RefreshTokenTTL int64 // seconds, default: 2592000 (30 days)

	// IDTokenTTL is how long ID tokens are valid
	IDTokenTTL int64 // seconds, default: 3600 (1 hour)

	// LogoutTokenTTL is how long back-channel logout tokens are valid
	LogoutTokenTTL int64 // seconds, default: 120

	// Flows selects the enabled authorization flows.
	// A zero value enables the authorization code flow only.
	Flows Flows

	// EnableDynamicRegistration enables RFC 7591 dynamic client registration.
	// The discovery document advertises registration_endpoint only when set.
	// Default: false
	EnableDynamicRegistration bool

	// DefaultClaimsMapping is the service-level claim-export mapping
	// (claim name -> session attribute) merged into every registered client
	// that does not override the claim.
	DefaultClaimsMapping map[string]string

	// HTTPClient is used for outbound requests (client JWKS fetches,
	// back-channel logout notifications). Defaults to a client with a
	// 10-second timeout.
	HTTPClient *http.Client

	// JWKSCacheTTL is how long fetched client JWK Sets are cached.
	// Default: 5 minutes
	JWKSCacheTTL time.Duration
}

// Validate checks the configuration for hard errors that indicate
// misdeployment rather than bad user input.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	issuerURL, err := url.Parse(c.Issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}
	if issuerURL.Scheme != "http" && issuerURL.Scheme != "https" {
		return fmt.Errorf("invalid issuer URL scheme: %s (must be http or https)", issuerURL.Scheme)
	}
	return nil
}

// applySecureDefaults applies secure-by-default configuration values
// This follows the principle: secure by default, opt-in for less secure options
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)

	// A zero Flows value means the caller did not choose; enable the
	// authorization code flow, the only one OAuth 2.1 retains.
	if !config.Flows.AuthorizationCode && !config.Flows.Implicit && !config.Flows.Hybrid {
		config.Flows.AuthorizationCode = true
	}

	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if config.JWKSCacheTTL <= 0 {
		config.JWKSCacheTTL = 5 * time.Minute
	}

	logSecurityWarnings(config, logger)

	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if config.IDTokenTTL == 0 {
		config.IDTokenTTL = DefaultIDTokenTTL
	}
	if config.LogoutTokenTTL == 0 {
		config.LogoutTokenTTL = DefaultLogoutTokenTTL
	}
}

// logSecurityWarnings logs warnings for insecure configuration settings
func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.Flows.Implicit {
		logger.Warn("SECURITY WARNING: Implicit flow is ENABLED",
			"risk", "Tokens exposed in URL fragments",
			"recommendation", "Use the authorization code flow with PKCE instead")
	}
	if config.EnableDynamicRegistration {
		logger.Warn("Dynamic client registration is enabled",
			"risk", "Unauthenticated parties can create clients",
			"recommendation", "Attach a RegistrationRateLimiter via SetRegistrationRateLimiter")
	}
}

// resolveTTL resolves a token lifetime with layered precedence:
// client-level override > service-level default > hardcoded fallback.
// All values are in seconds.
func resolveTTL(clientOverride, serviceDefault, fallback int64) time.Duration {
	switch {
	case clientOverride > 0:
		return time.Duration(clientOverride) * time.Second
	case serviceDefault > 0:
		return time.Duration(serviceDefault) * time.Second
	default:
		return time.Duration(fallback) * time.Second
	}
}
