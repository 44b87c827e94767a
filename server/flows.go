package server

import (
	"context"
	"time"

	oidc "github.com/giantswarm/oidc-core"
	"github.com/giantswarm/oidc-core/internal/util"
)

// TokenRequest carries the form parameters of a token endpoint request
// after the HTTP layer has extracted them.
type TokenRequest struct {
	GrantType           string
	Code                string
	RedirectURI         string
	ClientID            string
	ClientSecret        string
	CodeVerifier        string
	RefreshToken        string
	Scope               string
	ClientAssertion     string
	ClientAssertionType string
}

// HandleTokenRequest dispatches a token endpoint request by grant type.
// On success it returns the token response; on failure the error is an
// *oidc.OAuthError whose code and description are safe to return to the
// caller. Detailed failure reasons go to the debug log only.
func (s *Server) HandleTokenRequest(ctx context.Context, req *TokenRequest) (*oidc.TokenResponse, error) {
	if s.RateLimiter != nil && req.ClientID != "" && !s.RateLimiter.Allow(req.ClientID) {
		if s.Auditor != nil {
			s.Auditor.LogRateLimitExceeded(req.ClientID)
		}
		s.metrics.RecordRateLimitExceeded(ctx, "token_endpoint")
		return nil, oidc.ErrInvalidRequest("rate limit exceeded")
	}

	var (
		resp *oidc.TokenResponse
		err  error
	)

	switch req.GrantType {
	case oidc.GrantTypeAuthorizationCode:
		resp, err = s.exchangeAuthorizationCode(ctx, req)
	case oidc.GrantTypeRefreshToken:
		resp, err = s.refreshToken(ctx, req)
	case oidc.GrantTypeClientCredentials:
		resp, err = s.clientCredentials(ctx, req)
	default:
		err = oidc.ErrUnsupportedGrantType("unsupported grant_type: " + req.GrantType)
	}

	result := "success"
	if err != nil {
		result = "error"
	}
	s.metrics.RecordTokenRequest(ctx, req.GrantType, result)

	return resp, err
}

// exchangeAuthorizationCode implements the authorization_code grant.
func (s *Server) exchangeAuthorizationCode(ctx context.Context, req *TokenRequest) (*oidc.TokenResponse, error) {
	// SECURITY: Atomically consume the authorization code. The store's
	// get-and-delete is a single indivisible step, so two concurrent
	// requests presenting the same code cannot both succeed.
	authCode, err := s.codes.ConsumeAuthorizationCode(ctx, req.Code)
	if err != nil {
		s.Logger.Debug("Authorization code validation failed",
			"reason", err.Error(),
			"client_id", req.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, 8))

		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(req.ClientID, "invalid_authorization_code")
		}
		// Generic error per RFC 6749: don't reveal whether the code was
		// unknown, expired, or already redeemed
		return nil, oidc.ErrInvalidGrant("invalid grant")
	}

	// Stores may consume lazily; re-check expiry here so a code past its
	// TTL never redeems even on first use
	if time.Now().After(authCode.ExpiresAt) {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "code_expired",
			"client_id", req.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, 8))
		return nil, oidc.ErrInvalidGrant("invalid grant")
	}

	if authCode.RedirectURI != req.RedirectURI {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "redirect_uri_mismatch",
			"client_id", req.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, 8))

		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(req.ClientID, "redirect_uri_mismatch")
		}
		return nil, oidc.ErrInvalidGrant("invalid grant")
	}

	// A client_id in the request must agree with the one bound to the code
	if req.ClientID != "" && req.ClientID != authCode.ClientID {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "client_id_mismatch",
			"expected_client_id", authCode.ClientID,
			"provided_client_id", req.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, 8))

		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(req.ClientID, "client_id_mismatch")
		}
		return nil, oidc.ErrInvalidGrant("invalid grant")
	}

	client, err := s.clients.GetClient(ctx, authCode.ClientID)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(authCode.ClientID, "unknown_client")
		}
		return nil, oidc.ErrInvalidClient("client authentication failed")
	}

	if err := s.authenticateClient(ctx, client, req); err != nil {
		return nil, err
	}

	if authCode.CodeChallenge != "" {
		if err := s.validatePKCE(authCode.CodeChallenge, authCode.CodeChallengeMethod, req.CodeVerifier, client.AllowPlainPKCE); err != nil {
			s.Logger.Debug("PKCE validation failed",
				"reason", err.Error(),
				"client_id", client.ID)

			if s.Auditor != nil {
				s.Auditor.LogAuthFailure(client.ID, "pkce_validation_failed")
			}
			s.metrics.RecordPKCEValidationFailed(ctx, authCode.CodeChallengeMethod)
			return nil, oidc.ErrInvalidGrant("invalid grant")
		}
	}

	return s.generateTokens(ctx, client, oidc.GrantTypeAuthorizationCode, authCode.UserID, authCode.SessionID, authCode.Scope, authCode.Nonce, authCode.AuthTime)
}

// refreshToken implements the refresh_token grant.
// No new refresh token is minted by this grant; rotation deletes the
// presented token before the new access/ID tokens are issued.
func (s *Server) refreshToken(ctx context.Context, req *TokenRequest) (*oidc.TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, oidc.ErrInvalidRequest("refresh_token is required")
	}

	token, err := s.tokens.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		s.Logger.Debug("Refresh token validation failed",
			"reason", err.Error(),
			"client_id", req.ClientID,
			"token_prefix", util.SafeTruncate(req.RefreshToken, 8))

		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(req.ClientID, "invalid_refresh_token")
		}
		return nil, oidc.ErrInvalidGrant("invalid grant")
	}

	if req.ClientID != "" && req.ClientID != token.ClientID {
		s.Logger.Debug("Refresh token validation failed",
			"reason", "client_id_mismatch",
			"expected_client_id", token.ClientID,
			"provided_client_id", req.ClientID)
		return nil, oidc.ErrInvalidGrant("invalid grant")
	}

	client, err := s.clients.GetClient(ctx, token.ClientID)
	if err != nil {
		return nil, oidc.ErrInvalidClient("client authentication failed")
	}

	if err := s.authenticateClient(ctx, client, req); err != nil {
		return nil, err
	}

	// Requested scope replaces the original when provided. Scope
	// containment against the original grant is deliberately not enforced
	// here; deployments needing it should restrict at the store layer.
	scope := token.Scope
	if req.Scope != "" {
		scope = req.Scope
	}

	rotated := false
	if client.RotateRefreshTokens {
		// Delete before reissue so the presented token is dead even if
		// issuance fails afterwards
		if err := s.tokens.DeleteRefreshToken(ctx, req.RefreshToken); err != nil {
			s.Logger.Warn("Failed to delete rotated refresh token", "error", err)
		}
		rotated = true
	}

	resp, err := s.generateTokens(ctx, client, oidc.GrantTypeRefreshToken, token.UserID, token.SessionID, scope, "", time.Time{})
	if err != nil {
		return nil, err
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenRefreshed(token.UserID, client.ID, rotated)
	}

	return resp, nil
}

// clientCredentials implements the client_credentials grant.
// Only an access token is issued; the subject is the client itself.
func (s *Server) clientCredentials(ctx context.Context, req *TokenRequest) (*oidc.TokenResponse, error) {
	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, oidc.ErrInvalidClient("client_id and client_secret are required")
	}

	client, err := s.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(req.ClientID, "unknown_client")
		}
		return nil, oidc.ErrInvalidClient("client authentication failed")
	}

	if err := s.validateClientSecret(client, req.ClientSecret); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(req.ClientID, "invalid_client_secret")
		}
		s.metrics.RecordClientAuthFailure(ctx, client.TokenEndpointAuthMethod)
		return nil, oidc.ErrInvalidClient("client authentication failed")
	}

	if !client.AllowClientCredentials {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(req.ClientID, "client_credentials_not_allowed")
		}
		return nil, oidc.ErrUnauthorizedClient("client is not authorized for the client_credentials grant")
	}

	accessToken, expiresIn, err := s.issueAccessToken(ctx, client, client.ID, "", req.Scope)
	if err != nil {
		return nil, err
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(client.ID, client.ID, oidc.GrantTypeClientCredentials, req.Scope)
	}
	s.metrics.RecordTokensIssued(ctx, client.ID, true, false, false)

	return &oidc.TokenResponse{
		AccessToken: accessToken,
		TokenType:   oidc.TokenTypeBearer,
		ExpiresIn:   expiresIn,
		Scope:       req.Scope,
	}, nil
}
