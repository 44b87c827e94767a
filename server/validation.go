package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	oidc "github.com/giantswarm/oidc-core"
	"github.com/giantswarm/oidc-core/storage"
)

// PKCE validation constants (RFC 7636)
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
)

// AuthorizationRequest carries the parameters of an authorization request
// after the HTTP layer has extracted them.
type AuthorizationRequest struct {
	ClientID            string
	ResponseType        string
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ValidateAuthorizationRequest checks an authorization request against
// protocol rules and the client's registration. Checks run in order and
// short-circuit on the first failure; a nil return means the request is
// valid. Errors are *oidc.OAuthError values carrying the protocol error code.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) error {
	if req.ClientID == "" {
		return oidc.ErrInvalidRequest("client_id is required")
	}
	if req.ResponseType == "" {
		return oidc.ErrInvalidRequest("response_type is required")
	}
	if req.RedirectURI == "" {
		return oidc.ErrInvalidRequest("redirect_uri is required")
	}

	client, err := s.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(req.ClientID, "unknown_client")
		}
		return oidc.ErrUnauthorizedClient("unknown client")
	}

	if err := s.validateRedirectURI(client, req.RedirectURI); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(req.ClientID, "redirect_uri_not_registered")
		}
		return oidc.ErrInvalidRequest("redirect_uri is not registered for this client")
	}

	if err := s.validateResponseType(req.ResponseType); err != nil {
		return err
	}

	if client.RequirePKCE {
		if req.CodeChallenge == "" {
			if s.Auditor != nil {
				s.Auditor.LogAuthFailure(req.ClientID, "missing_pkce_challenge")
			}
			return oidc.ErrInvalidRequest("PKCE is required: code_challenge parameter is mandatory for this client")
		}
		if req.CodeChallengeMethod == oidc.CodeChallengeMethodPlain && !client.AllowPlainPKCE {
			return oidc.ErrInvalidRequest("'plain' code_challenge_method is not allowed for this client (use S256)")
		}
	}

	if req.Scope != "" && !scopeContains(req.Scope, oidc.ScopeOpenID) {
		return oidc.ErrInvalidScope("scope must include 'openid'")
	}

	return nil
}

// validateRedirectURI checks the redirect URI against the client's allow-list.
// Matching is exact by string: no normalization of trailing slashes or
// percent-encoding, no wildcards. This is deliberate; loosening it silently
// changes which URIs a registration admits.
func (s *Server) validateRedirectURI(client *storage.Client, redirectURI string) error {
	for _, uri := range client.RedirectURIs {
		if uri == redirectURI {
			return nil
		}
	}
	return fmt.Errorf("redirect URI not registered for client")
}

// validateResponseType checks every space-separated response type token
// against the enabled flows.
func (s *Server) validateResponseType(responseType string) error {
	for _, rt := range strings.Fields(responseType) {
		switch rt {
		case oidc.ResponseTypeCode:
			if !s.Config.Flows.AuthorizationCode {
				return oidc.ErrUnsupportedResponseType("the authorization code flow is disabled")
			}
		case oidc.ResponseTypeToken:
			if !s.Config.Flows.Implicit {
				return oidc.ErrUnsupportedResponseType("the implicit flow is disabled")
			}
		case oidc.ResponseTypeIDToken:
			if !s.Config.Flows.Hybrid {
				return oidc.ErrUnsupportedResponseType("the hybrid flow is disabled")
			}
		default:
			return oidc.ErrUnsupportedResponseType(fmt.Sprintf("unsupported response_type: %s", rt))
		}
	}
	return nil
}

// validatePKCE validates the PKCE code verifier against the challenge per RFC 7636
func (s *Server) validatePKCE(challenge, method, verifier string, allowPlain bool) error {
	if challenge == "" {
		// No PKCE required for this exchange
		return nil
	}

	if verifier == "" {
		return fmt.Errorf("code_verifier is required when code_challenge is present")
	}

	// RFC 7636: code_verifier must be 43-128 characters
	if len(verifier) < MinCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at least %d characters (RFC 7636)", MinCodeVerifierLength)
	}
	if len(verifier) > MaxCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at most %d characters (RFC 7636)", MaxCodeVerifierLength)
	}

	// RFC 7636: code_verifier can only contain [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
	for _, ch := range verifier {
		isValid := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !isValid {
			return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}

	var computedChallenge string

	switch method {
	case oidc.CodeChallengeMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		computedChallenge = base64.RawURLEncoding.EncodeToString(hash[:])

	case oidc.CodeChallengeMethodPlain:
		if !allowPlain {
			return fmt.Errorf("'plain' code_challenge_method is not allowed (only S256 is supported)")
		}
		computedChallenge = verifier
		s.Logger.Warn("Using insecure 'plain' PKCE method",
			"recommendation", "Upgrade client to use S256")

	default:
		return fmt.Errorf("unsupported code_challenge_method: %s", method)
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(computedChallenge), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}

	return nil
}

// scopeContains reports whether the space-separated scope string includes the
// given scope token.
func scopeContains(scope, target string) bool {
	for _, sc := range strings.Fields(scope) {
		if sc == target {
			return true
		}
	}
	return false
}
