package server

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	oidc "github.com/giantswarm/oidc-core"
	"github.com/giantswarm/oidc-core/storage"
)

// dangerousSchemes are URI schemes that enable script injection through a
// redirect and are never allowed in a registration.
var dangerousSchemes = []string{"javascript:", "vbscript:", "data:"}

// eventHandlerPattern matches inline event-handler attributes (onload=,
// onerror=, ...) smuggled into a redirect URI.
var eventHandlerPattern = regexp.MustCompile(`on\w+\s*=`)

// RegisterClient handles a dynamic client registration request (RFC 7591).
// Every redirect URI is scanned against the deny-list; a single match
// rejects the whole request with no partial registration.
func (s *Server) RegisterClient(ctx context.Context, req *oidc.ClientRegistrationRequest, callerID string) (*oidc.ClientRegistrationResponse, error) {
	if !s.Config.EnableDynamicRegistration {
		return nil, oidc.NewOAuthError(oidc.ErrorCodeInvalidRequest, "dynamic client registration is disabled", http.StatusForbidden)
	}

	if s.RegistrationLimiter != nil && callerID != "" && !s.RegistrationLimiter.Allow(callerID) {
		if s.Auditor != nil {
			s.Auditor.LogRateLimitExceeded(callerID)
		}
		s.metrics.RecordRateLimitExceeded(ctx, "registration")
		return nil, oidc.NewOAuthError(oidc.ErrorCodeRateLimitExceeded, "too many registration requests", http.StatusTooManyRequests)
	}

	if len(req.RedirectURIs) == 0 {
		return nil, oidc.ErrInvalidClientMetadata("redirect_uris is required and must not be empty")
	}

	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURIPattern(uri); err != nil {
			if s.Auditor != nil {
				s.Auditor.LogClientRegistrationRejected(err.Error())
			}
			s.Logger.Warn("Client registration rejected: redirect URI validation failed",
				"error", err.Error())
			return nil, oidc.ErrInvalidRedirectURI(err.Error())
		}
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = oidc.AuthMethodClientSecretBasic
	}

	clientID := generateRandomToken()
	secret, secretHash, err := s.generateClientSecret(authMethod)
	if err != nil {
		return nil, oidc.ErrServerError("failed to generate client credentials")
	}

	// The raw secret is disclosed to the caller exactly once. At rest only
	// the hash is kept, except for client_secret_jwt where the raw value is
	// the assertion HMAC key.
	storedSecret := secret
	if secretHash != "" {
		storedSecret = ""
	}

	signingAlg := req.IDTokenSignedResponseAlg
	if signingAlg == "" {
		signingAlg = s.defaultSigningAlgorithm(ctx)
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{oidc.GrantTypeAuthorizationCode, oidc.GrantTypeRefreshToken}
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{oidc.ResponseTypeCode}
	}

	client := &storage.Client{
		ID:                                clientID,
		Secret:                            storedSecret,
		SecretHash:                        secretHash,
		RedirectURIs:                      req.RedirectURIs,
		PostLogoutRedirectURIs:            req.PostLogoutRedirectURIs,
		TokenEndpointAuthMethod:           authMethod,
		GrantTypes:                        grantTypes,
		ResponseTypes:                     responseTypes,
		ClientName:                        req.ClientName,
		Scopes:                            strings.Fields(req.Scope),
		RequirePKCE:                       authMethod == oidc.AuthMethodNone,
		JWKSURI:                           req.JWKSURI,
		JWKS:                              req.JWKS,
		IDTokenSignedResponseAlg:          signingAlg,
		IDTokenEncryptedResponseAlg:       req.IDTokenEncryptedResponseAlg,
		IDTokenEncryptedResponseEnc:       req.IDTokenEncryptedResponseEnc,
		UserinfoEncryptedResponseAlg:      req.UserinfoEncryptedResponseAlg,
		UserinfoEncryptedResponseEnc:      req.UserinfoEncryptedResponseEnc,
		BackchannelLogoutURI:              req.BackchannelLogoutURI,
		BackchannelLogoutSessionRequired:  req.BackchannelLogoutSessionRequired,
		FrontchannelLogoutURI:             req.FrontchannelLogoutURI,
		FrontchannelLogoutSessionRequired: req.FrontchannelLogoutSessionRequired,
		ClaimsMapping:                     s.mergeClaimsMapping(nil),
		CreatedAt:                         time.Now(),
	}

	if err := s.clients.SaveClient(ctx, client); err != nil {
		return nil, oidc.ErrServerError("failed to save client")
	}

	if s.Auditor != nil {
		s.Auditor.LogClientRegistered(clientID, authMethod)
	}
	s.metrics.RecordClientRegistration(ctx, authMethod)

	s.Logger.Info("Registered new client",
		"client_id", clientID,
		"client_name", req.ClientName,
		"token_endpoint_auth_method", authMethod)

	resp := &oidc.ClientRegistrationResponse{
		ClientID:         clientID,
		ClientSecret:     secret,
		ClientIDIssuedAt: client.CreatedAt.Unix(),
		// 0 means the secret never expires
		ClientSecretExpiresAt:       0,
		RedirectURIs:                client.RedirectURIs,
		PostLogoutRedirectURIs:      client.PostLogoutRedirectURIs,
		TokenEndpointAuthMethod:     authMethod,
		GrantTypes:                  grantTypes,
		ResponseTypes:               responseTypes,
		ClientName:                  client.ClientName,
		Scope:                       req.Scope,
		IDTokenSignedResponseAlg:    signingAlg,
		IDTokenEncryptedResponseAlg: client.IDTokenEncryptedResponseAlg,
		IDTokenEncryptedResponseEnc: client.IDTokenEncryptedResponseEnc,
		BackchannelLogoutURI:        client.BackchannelLogoutURI,
		FrontchannelLogoutURI:       client.FrontchannelLogoutURI,
	}
	return resp, nil
}

// validateRedirectURIPattern scans one redirect URI against the deny-list:
// dangerous schemes, inline script tags, inline event-handler attributes,
// and percent-encoded script tags.
func validateRedirectURIPattern(uri string) error {
	lower := strings.ToLower(uri)

	for _, scheme := range dangerousSchemes {
		if strings.HasPrefix(lower, scheme) {
			return fmt.Errorf("redirect_uri scheme %q is not allowed", strings.TrimSuffix(scheme, ":"))
		}
	}
	if strings.Contains(lower, "<script") {
		return fmt.Errorf("redirect_uri must not contain script tags")
	}
	if eventHandlerPattern.MatchString(lower) {
		return fmt.Errorf("redirect_uri must not contain event handler attributes")
	}
	if strings.Contains(lower, "%3cscript") {
		return fmt.Errorf("redirect_uri must not contain encoded script tags")
	}
	return nil
}

// generateClientSecret generates credentials appropriate for the auth method.
// Public clients get no secret. Secrets are bcrypt-hashed at rest except for
// client_secret_jwt, which needs the raw secret as the assertion HMAC key.
func (s *Server) generateClientSecret(authMethod string) (secret, secretHash string, err error) {
	if authMethod == oidc.AuthMethodNone {
		return "", "", nil
	}

	secret = generateRandomToken()
	if authMethod == oidc.AuthMethodClientSecretJWT {
		return secret, "", nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return secret, string(hash), nil
}

// defaultSigningAlgorithm derives the default ID-token signing algorithm
// from the provider's key type: EC keys default to ES256, everything else
// to RS256.
func (s *Server) defaultSigningAlgorithm(ctx context.Context) string {
	key, err := s.keys.SigningKey(ctx)
	if err == nil && strings.HasPrefix(key.Algorithm, "ES") {
		return "ES256"
	}
	return "RS256"
}

// mergeClaimsMapping merges the service-level default claim-export mapping
// with a client-supplied one; client entries win.
func (s *Server) mergeClaimsMapping(clientMapping map[string]string) map[string]string {
	if len(s.Config.DefaultClaimsMapping) == 0 && len(clientMapping) == 0 {
		return nil
	}
	merged := make(map[string]string, len(s.Config.DefaultClaimsMapping)+len(clientMapping))
	for claim, attr := range s.Config.DefaultClaimsMapping {
		merged[claim] = attr
	}
	for claim, attr := range clientMapping {
		merged[claim] = attr
	}
	return merged
}
