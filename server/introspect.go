package server

import (
	"context"
	"fmt"

	oidc "github.com/giantswarm/oidc-core"
	"github.com/giantswarm/oidc-core/internal/util"
	"github.com/giantswarm/oidc-core/storage"
)

// IntrospectToken returns the RFC 7662 introspection response for a token
// value. Unknown, expired, and revoked tokens all yield {active: false} with
// no further detail, so callers cannot probe the token space.
func (s *Server) IntrospectToken(ctx context.Context, value string) *oidc.IntrospectionResponse {
	token := s.lookupToken(ctx, value)
	if token == nil {
		s.metrics.RecordIntrospection(ctx, false)
		return &oidc.IntrospectionResponse{Active: false}
	}

	s.metrics.RecordIntrospection(ctx, true)
	return &oidc.IntrospectionResponse{
		Active:    true,
		Scope:     token.Scope,
		ClientID:  token.ClientID,
		Sub:       token.UserID,
		TokenType: token.TokenType,
		Exp:       token.ExpiresAt.Unix(),
		Iat:       token.IssuedAt.Unix(),
		Jti:       token.JTI,
		Iss:       s.Config.Issuer,
	}
}

// RevokeToken revokes an access or refresh token by value. Per RFC 7009 the
// operation succeeds regardless of whether the token exists, so the endpoint
// cannot be used to probe for valid tokens.
func (s *Server) RevokeToken(ctx context.Context, value string) error {
	token := s.lookupToken(ctx, value)

	if err := s.tokens.RevokeToken(ctx, value); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	if token != nil {
		if s.Auditor != nil {
			s.Auditor.LogTokenRevoked(token.UserID, token.ClientID, token.TokenType)
		}
		s.Logger.Info("Token revoked",
			"client_id", token.ClientID,
			"token_type", token.TokenType,
			"token_prefix", util.SafeTruncate(value, 8))
	}
	s.metrics.RecordRevocation(ctx)

	return nil
}

// lookupToken finds a live token record by value in either table.
func (s *Server) lookupToken(ctx context.Context, value string) *storage.Token {
	if token, err := s.tokens.GetAccessToken(ctx, value); err == nil {
		return token
	}
	if token, err := s.tokens.GetRefreshToken(ctx, value); err == nil {
		return token
	}
	return nil
}
