package server

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	oidc "github.com/giantswarm/oidc-core"
	"github.com/giantswarm/oidc-core/clientkeys"
	"github.com/giantswarm/oidc-core/instrumentation"
	"github.com/giantswarm/oidc-core/keys"
	"github.com/giantswarm/oidc-core/security"
	"github.com/giantswarm/oidc-core/storage"
)

// Server implements the token-issuance core of the OpenID Provider.
// It coordinates authorization code issuance, the token endpoint grants,
// client authentication, introspection, revocation, registration, and logout
// using the storage backends and the key manager.
type Server struct {
	codes    storage.CodeStore
	tokens   storage.TokenStore
	clients  storage.ClientStore
	sessions storage.SessionStore
	keys     keys.Manager

	// clientKeys resolves keys published by clients (jwks_uri or inline
	// jwks) for assertion verification and response encryption.
	clientKeys *clientkeys.Cache

	Auditor             *security.Auditor
	RateLimiter         *security.RateLimiter             // per-client token endpoint limiter
	RegistrationLimiter *security.RegistrationRateLimiter // dynamic registration limiter
	Logger              *slog.Logger
	Config              *Config

	metrics *instrumentation.Metrics
}

// New creates a new provider core.
// All four stores may be backed by a single storage/memory.Store.
func New(
	codeStore storage.CodeStore,
	tokenStore storage.TokenStore,
	clientStore storage.ClientStore,
	sessionStore storage.SessionStore,
	keyManager keys.Manager,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if codeStore == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if sessionStore == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if keyManager == nil {
		return nil, fmt.Errorf("key manager is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	srv := &Server{
		codes:      codeStore,
		tokens:     tokenStore,
		clients:    clientStore,
		sessions:   sessionStore,
		keys:       keyManager,
		clientKeys: clientkeys.NewCache(config.HTTPClient, config.JWKSCacheTTL, logger),
		Config:     config,
		Logger:     logger,
	}

	return srv, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetRateLimiter sets the per-client token endpoint rate limiter
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// SetRegistrationRateLimiter sets the rate limiter guarding dynamic client
// registration
func (s *Server) SetRegistrationRateLimiter(rl *security.RegistrationRateLimiter) {
	s.RegistrationLimiter = rl
}

// SetInstrumentation wires OpenTelemetry metrics into the server and its
// client key cache.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	s.metrics = inst.Metrics()
	s.clientKeys.SetMetrics(s.metrics)
}

// Metadata returns the provider's discovery metadata.
// registration_endpoint is advertised only when dynamic registration is
// enabled.
func (s *Server) Metadata() *oidc.ProviderMetadata {
	issuer := s.Config.Issuer
	md := &oidc.ProviderMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/authorize",
		TokenEndpoint:                     issuer + "/token",
		IntrospectionEndpoint:             issuer + "/introspect",
		RevocationEndpoint:                issuer + "/revoke",
		EndSessionEndpoint:                issuer + "/endsession",
		JWKSURI:                           issuer + "/jwks",
		ResponseTypesSupported:            s.supportedResponseTypes(),
		GrantTypesSupported:               []string{oidc.GrantTypeAuthorizationCode, oidc.GrantTypeRefreshToken, oidc.GrantTypeClientCredentials},
		TokenEndpointAuthMethodsSupported: []string{oidc.AuthMethodNone, oidc.AuthMethodClientSecretBasic, oidc.AuthMethodClientSecretPost, oidc.AuthMethodClientSecretJWT, oidc.AuthMethodPrivateKeyJWT},
		CodeChallengeMethodsSupported:     []string{oidc.CodeChallengeMethodS256, oidc.CodeChallengeMethodPlain},
		BackchannelLogoutSupported:        true,
		BackchannelLogoutSessionSupported: true,
		FrontchannelLogoutSupported:       true,
	}
	if s.Config.EnableDynamicRegistration {
		md.RegistrationEndpoint = issuer + "/register"
	}
	return md
}

// JWKS returns the provider's public key set for the jwks endpoint.
func (s *Server) JWKS(ctx context.Context) (any, error) {
	return s.keys.JWKS(ctx)
}

func (s *Server) supportedResponseTypes() []string {
	var types []string
	if s.Config.Flows.AuthorizationCode {
		types = append(types, oidc.ResponseTypeCode)
	}
	if s.Config.Flows.Implicit {
		types = append(types, oidc.ResponseTypeToken)
	}
	if s.Config.Flows.Hybrid {
		types = append(types, oidc.ResponseTypeIDToken)
	}
	return types
}

// generateRandomToken generates a cryptographically secure random token.
// This is an alias for oauth2.GenerateVerifier() which produces a URL-safe,
// base64-encoded random string suitable for codes, tokens, and client ids.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}
