package server

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	oidc "github.com/giantswarm/oidc-core"
	"github.com/giantswarm/oidc-core/clientkeys"
	"github.com/giantswarm/oidc-core/storage"
)

// scopeClaims maps the standard OIDC scopes to the claims they release
// (OpenID Connect Core 1.0 Section 5.4).
var scopeClaims = map[string][]string{
	"profile": {
		"name", "family_name", "given_name", "middle_name", "nickname",
		"preferred_username", "profile", "picture", "website", "gender",
		"birthdate", "zoneinfo", "locale", "updated_at",
	},
	"email":   {"email", "email_verified"},
	"address": {"address"},
	"phone":   {"phone_number", "phone_number_verified"},
}

// generateTokens builds the token response for a resolved
// (client, user, session, scope) tuple: an access token, an ID token, and a
// refresh token when the grant allows offline access.
func (s *Server) generateTokens(ctx context.Context, client *storage.Client, grantType, userID, sessionID, scope, nonce string, authTime time.Time) (*oidc.TokenResponse, error) {
	accessToken, expiresIn, err := s.issueAccessToken(ctx, client, userID, sessionID, scope)
	if err != nil {
		return nil, err
	}

	idToken, err := s.issueIDToken(ctx, client, userID, sessionID, scope, nonce, authTime, accessToken)
	if err != nil {
		return nil, err
	}

	resp := &oidc.TokenResponse{
		AccessToken: accessToken,
		TokenType:   oidc.TokenTypeBearer,
		ExpiresIn:   expiresIn,
		IDToken:     idToken,
		Scope:       scope,
	}

	// Only the authorization_code grant mints refresh tokens, iff the
	// granted scope contains offline_access and the client's allow-offline
	// flag is not explicitly false (nil means allowed). The refresh grant
	// keeps the presented token alive instead of minting a replacement.
	issueRefresh := grantType == oidc.GrantTypeAuthorizationCode &&
		scopeContains(scope, oidc.ScopeOfflineAccess) &&
		(client.AllowOfflineAccess == nil || *client.AllowOfflineAccess)
	if issueRefresh {
		refreshToken, err := s.issueRefreshToken(ctx, client, userID, sessionID, scope)
		if err != nil {
			return nil, err
		}
		resp.RefreshToken = refreshToken
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(userID, client.ID, grantType, scope)
	}
	s.metrics.RecordTokensIssued(ctx, client.ID, true, idToken != "", issueRefresh)

	return resp, nil
}

// issueAccessToken mints an access token in the client's configured format
// and records its metadata for introspection and revocation. JWT access
// tokens are stored by value too so both formats revoke uniformly.
func (s *Server) issueAccessToken(ctx context.Context, client *storage.Client, userID, sessionID, scope string) (string, int64, error) {
	ttl := resolveTTL(client.AccessTokenTTL, s.Config.AccessTokenTTL, DefaultAccessTokenTTL)
	now := time.Now()
	jti := generateRandomToken()

	var value string
	if client.AccessTokenFormat == oidc.AccessTokenFormatJWT {
		claims := jwt.MapClaims{
			"iss":       s.Config.Issuer,
			"sub":       userID,
			"aud":       client.ID,
			"exp":       now.Add(ttl).Unix(),
			"iat":       now.Unix(),
			"jti":       jti,
			"client_id": client.ID,
			"scope":     scope,
		}
		signed, err := s.keys.SignJWT(claims)
		if err != nil {
			return "", 0, fmt.Errorf("failed to sign access token: %w", err)
		}
		value = signed
	} else {
		value = generateRandomToken()
	}

	token := &storage.Token{
		Value:     value,
		TokenType: storage.TokenTypeAccess,
		ClientID:  client.ID,
		UserID:    userID,
		SessionID: sessionID,
		Scope:     scope,
		JTI:       jti,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.tokens.SaveAccessToken(ctx, token); err != nil {
		return "", 0, fmt.Errorf("failed to save access token: %w", err)
	}

	return value, int64(ttl.Seconds()), nil
}

// issueRefreshToken mints an opaque refresh token and records it.
func (s *Server) issueRefreshToken(ctx context.Context, client *storage.Client, userID, sessionID, scope string) (string, error) {
	ttl := resolveTTL(client.RefreshTokenTTL, s.Config.RefreshTokenTTL, DefaultRefreshTokenTTL)
	now := time.Now()
	value := generateRandomToken()

	token := &storage.Token{
		Value:     value,
		TokenType: storage.TokenTypeRefresh,
		ClientID:  client.ID,
		UserID:    userID,
		SessionID: sessionID,
		Scope:     scope,
		JTI:       generateRandomToken(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.tokens.SaveRefreshToken(ctx, token); err != nil {
		return "", fmt.Errorf("failed to save refresh token: %w", err)
	}

	return value, nil
}

// issueIDToken assembles, signs, and optionally encrypts the ID token.
// ID tokens are never persisted.
func (s *Server) issueIDToken(ctx context.Context, client *storage.Client, userID, sessionID, scope, nonce string, authTime time.Time, accessToken string) (string, error) {
	ttl := resolveTTL(client.IDTokenTTL, s.Config.IDTokenTTL, DefaultIDTokenTTL)
	now := time.Now()

	claims := jwt.MapClaims{
		"iss": s.Config.Issuer,
		"sub": userID,
		"aud": client.ID,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	}
	if !authTime.IsZero() {
		claims["auth_time"] = authTime.Unix()
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}

	if atHash, ok := s.computeAtHash(ctx, accessToken); ok {
		claims["at_hash"] = atHash
	}

	s.addSessionClaims(ctx, client, sessionID, scope, claims)

	signed, err := s.keys.SignJWT(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign ID token: %w", err)
	}

	return s.maybeEncrypt(ctx, client, signed), nil
}

// computeAtHash computes the at_hash claim binding the ID token to the
// access token: the left half of the signing algorithm's hash over the token,
// base64url-encoded. Returns false when no signing algorithm resolves.
func (s *Server) computeAtHash(ctx context.Context, accessToken string) (string, bool) {
	key, err := s.keys.SigningKey(ctx)
	if err != nil || key.Algorithm == "" {
		return "", false
	}

	var sum []byte
	switch key.Algorithm[len(key.Algorithm)-3:] {
	case "256":
		h := sha256.Sum256([]byte(accessToken))
		sum = h[:]
	case "384":
		h := sha512.Sum384([]byte(accessToken))
		sum = h[:]
	case "512":
		h := sha512.Sum512([]byte(accessToken))
		sum = h[:]
	default:
		return "", false
	}

	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2]), true
}

// addSessionClaims copies session attributes into the ID token claims,
// filtered first by the client's explicit claim-export mapping and then by
// the standard scope-to-claims tables. The first writer wins: a claim is
// added only once and never overwrites one already present.
func (s *Server) addSessionClaims(ctx context.Context, client *storage.Client, sessionID, scope string, claims jwt.MapClaims) {
	if sessionID == "" {
		return
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		s.Logger.Debug("Session lookup failed during ID token assembly",
			"session_id", sessionID,
			"error", err)
		return
	}

	for claim, attribute := range client.ClaimsMapping {
		if _, exists := claims[claim]; exists {
			continue
		}
		if value, ok := session[attribute]; ok {
			claims[claim] = value
		}
	}

	for _, sc := range []string{"profile", "email", "address", "phone"} {
		if !scopeContains(scope, sc) {
			continue
		}
		for _, claim := range scopeClaims[sc] {
			if _, exists := claims[claim]; exists {
				continue
			}
			if value, ok := session[claim]; ok {
				claims[claim] = value
			}
		}
	}
}

// maybeEncrypt wraps the signed ID token in a JWE envelope when the client
// registered an encryption algorithm. Encryption is best-effort: on any
// failure the signed token is returned unchanged, never an error.
func (s *Server) maybeEncrypt(ctx context.Context, client *storage.Client, signed string) string {
	if client.IDTokenEncryptedResponseAlg == "" {
		return signed
	}

	source := client.JWKSURI
	if source == "" {
		source = client.JWKS
	}
	if source == "" {
		s.Logger.Warn("Client requests ID token encryption but has no JWKS",
			"client_id", client.ID)
		s.metrics.RecordTokenEncryption(ctx, "skipped")
		return signed
	}

	set, err := s.clientKeys.Get(ctx, source)
	if err != nil {
		s.Logger.Warn("Failed to resolve client JWKS for encryption",
			"client_id", client.ID,
			"error", err)
		s.metrics.RecordTokenEncryption(ctx, "skipped")
		return signed
	}

	key, err := clientkeys.EncryptionKey(set)
	if err != nil {
		s.Logger.Warn("No usable encryption key in client JWKS",
			"client_id", client.ID,
			"error", err)
		s.metrics.RecordTokenEncryption(ctx, "skipped")
		return signed
	}

	enc := client.IDTokenEncryptedResponseEnc
	if enc == "" {
		enc = "A128CBC-HS256"
	}

	encrypted, err := clientkeys.Encrypt(signed, client.IDTokenEncryptedResponseAlg, enc, key)
	if err != nil {
		s.Logger.Warn("ID token encryption failed, returning signed token",
			"client_id", client.ID,
			"error", err)
		s.metrics.RecordTokenEncryption(ctx, "skipped")
		return signed
	}

	s.metrics.RecordTokenEncryption(ctx, "encrypted")
	return encrypted
}
