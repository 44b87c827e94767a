package server

import (
	"context"
	"fmt"
	"time"

	oidc "github.com/giantswarm/oidc-core"
	"github.com/giantswarm/oidc-core/internal/util"
	"github.com/giantswarm/oidc-core/storage"
)

// IssueAuthorizationCode mints a one-time authorization code for an already
// authenticated user/session and persists it. The request must have passed
// ValidateAuthorizationRequest first.
func (s *Server) IssueAuthorizationCode(ctx context.Context, req *AuthorizationRequest, userID, sessionID string) (string, error) {
	client, err := s.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		return "", oidc.ErrUnauthorizedClient("unknown client")
	}

	scope := req.Scope
	if scope == "" {
		scope = oidc.ScopeOpenID
	}

	// generateRandomToken yields 32 bytes of randomness, URL-safe encoded
	code := generateRandomToken()
	now := time.Now()
	ttl := resolveTTL(client.AuthorizationCodeTTL, s.Config.AuthorizationCodeTTL, DefaultAuthorizationCodeTTL)

	authCode := &storage.AuthorizationCode{
		Code:                code,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               scope,
		UserID:              userID,
		SessionID:           sessionID,
		Nonce:               req.Nonce,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		AuthTime:            now,
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
	}

	if err := s.codes.SaveAuthorizationCode(ctx, authCode); err != nil {
		return "", fmt.Errorf("failed to save authorization code: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogAuthorizationCodeIssued(userID, req.ClientID, scope)
	}
	s.metrics.RecordAuthorizationCodeIssued(ctx, req.ClientID)

	s.Logger.Debug("Issued authorization code",
		"client_id", req.ClientID,
		"scope", scope,
		"code_prefix", util.SafeTruncate(code, 8),
		"expires_at", authCode.ExpiresAt,
	)

	return code, nil
}
