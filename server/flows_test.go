package server

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	oidc "github.com/giantswarm/oidc-core"
	"github.com/giantswarm/oidc-core/security"
	"github.com/giantswarm/oidc-core/storage"
)

// issueCode runs the authorize step for a saved client and returns the code
func issueCode(t *testing.T, srv *Server, req *AuthorizationRequest, userID, sessionID string) string {
	t.Helper()

	if err := srv.ValidateAuthorizationRequest(context.Background(), req); err != nil {
		t.Fatalf("Expected authorization request to validate, got: %v", err)
	}
	code, err := srv.IssueAuthorizationCode(context.Background(), req, userID, sessionID)
	if err != nil {
		t.Fatalf("Expected authorization code to be issued, got: %v", err)
	}
	return code
}

// parseIDTokenClaims decodes the ID token payload without verifying the signature
func parseIDTokenClaims(t *testing.T, idToken string) jwt.MapClaims {
	t.Helper()

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		t.Fatalf("Expected ID token to parse, got: %v", err)
	}
	return claims
}

func wantOAuthCode(t *testing.T, err error, code string) {
	t.Helper()

	var oauthErr *oidc.OAuthError
	if !errors.As(err, &oauthErr) {
		t.Fatalf("Expected *oidc.OAuthError, got %T: %v", err, err)
	}
	if oauthErr.Code != code {
		t.Fatalf("Expected error code %q, got %q (%s)", code, oauthErr.Code, oauthErr.Description)
	}
}

func TestAuthorizationCodeGrant(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)
	ctx := context.Background()

	setup.saveClient(t, &storage.Client{
		ID:           "c1",
		RedirectURIs: []string{"https://app.example.com/callback"},
	})

	authReq := &AuthorizationRequest{
		ClientID:     "c1",
		ResponseType: "code",
		RedirectURI:  "https://app.example.com/callback",
		Scope:        "openid profile",
		Nonce:        "n-abc123",
	}
	code := issueCode(t, srv, authReq, "s1", "")

	before := time.Now()
	resp, err := srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:   oidc.GrantTypeAuthorizationCode,
		Code:        code,
		RedirectURI: "https://app.example.com/callback",
		ClientID:    "c1",
	})
	if err != nil {
		t.Fatalf("Expected token exchange to succeed, got: %v", err)
	}

	if resp.AccessToken == "" {
		t.Error("Expected an access token")
	}
	if resp.TokenType != oidc.TokenTypeBearer {
		t.Errorf("Expected token_type Bearer, got %q", resp.TokenType)
	}
	if resp.IDToken == "" {
		t.Fatal("Expected an ID token")
	}
	if resp.RefreshToken != "" {
		t.Error("Expected no refresh token without offline_access scope")
	}
	if resp.ExpiresIn != DefaultAccessTokenTTL {
		t.Errorf("Expected expires_in %d, got %d", DefaultAccessTokenTTL, resp.ExpiresIn)
	}

	claims := parseIDTokenClaims(t, resp.IDToken)
	if claims["iss"] != testIssuer {
		t.Errorf("Expected iss %q, got %v", testIssuer, claims["iss"])
	}
	if claims["sub"] != "s1" {
		t.Errorf("Expected sub s1, got %v", claims["sub"])
	}
	if claims["aud"] != "c1" {
		t.Errorf("Expected aud c1, got %v", claims["aud"])
	}
	if claims["nonce"] != "n-abc123" {
		t.Errorf("Expected nonce to round-trip, got %v", claims["nonce"])
	}
	exp, _ := claims["exp"].(float64)
	iat, _ := claims["iat"].(float64)
	if exp <= iat {
		t.Errorf("Expected exp (%v) after iat (%v)", exp, iat)
	}
	if iat < float64(before.Unix())-5 {
		t.Errorf("Expected iat near issuance time, got %v", iat)
	}
	if _, ok := claims["at_hash"]; !ok {
		t.Error("Expected at_hash claim binding the access token")
	}
	if _, ok := claims["auth_time"]; !ok {
		t.Error("Expected auth_time claim")
	}
}

func TestAuthorizationCodeGrant_SingleUse(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)
	ctx := context.Background()

	setup.saveClient(t, &storage.Client{
		ID:           "c1",
		RedirectURIs: []string{"https://app.example.com/callback"},
	})
	code := issueCode(t, srv, &AuthorizationRequest{
		ClientID:     "c1",
		ResponseType: "code",
		RedirectURI:  "https://app.example.com/callback",
		Scope:        "openid",
	}, "s1", "")

	req := &TokenRequest{
		GrantType:   oidc.GrantTypeAuthorizationCode,
		Code:        code,
		RedirectURI: "https://app.example.com/callback",
		ClientID:    "c1",
	}
	if _, err := srv.HandleTokenRequest(ctx, req); err != nil {
		t.Fatalf("Expected first redemption to succeed, got: %v", err)
	}

	_, err := srv.HandleTokenRequest(ctx, req)
	wantOAuthCode(t, err, oidc.ErrorCodeInvalidGrant)
}

func TestAuthorizationCodeGrant_Failures(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)
	ctx := context.Background()

	setup.saveClient(t, &storage.Client{
		ID:           "c1",
		RedirectURIs: []string{"https://app.example.com/callback"},
	})
	setup.saveClient(t, &storage.Client{
		ID:           "c2",
		RedirectURIs: []string{"https://other.example.com/callback"},
	})

	newCode := func() string {
		return issueCode(t, srv, &AuthorizationRequest{
			ClientID:     "c1",
			ResponseType: "code",
			RedirectURI:  "https://app.example.com/callback",
			Scope:        "openid",
		}, "s1", "")
	}

	tests := []struct {
		name string
		req  func() *TokenRequest
	}{
		{
			name: "unknown code",
			req: func() *TokenRequest {
				return &TokenRequest{
					GrantType:   oidc.GrantTypeAuthorizationCode,
					Code:        "no-such-code",
					RedirectURI: "https://app.example.com/callback",
					ClientID:    "c1",
				}
			},
		},
		{
			name: "redirect_uri mismatch",
			req: func() *TokenRequest {
				return &TokenRequest{
					GrantType:   oidc.GrantTypeAuthorizationCode,
					Code:        newCode(),
					RedirectURI: "https://evil.example.com/callback",
					ClientID:    "c1",
				}
			},
		},
		{
			name: "client_id mismatch",
			req: func() *TokenRequest {
				return &TokenRequest{
					GrantType:   oidc.GrantTypeAuthorizationCode,
					Code:        newCode(),
					RedirectURI: "https://app.example.com/callback",
					ClientID:    "c2",
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.HandleTokenRequest(ctx, tt.req())
			wantOAuthCode(t, err, oidc.ErrorCodeInvalidGrant)
		})
	}
}

func TestAuthorizationCodeGrant_ExpiredCode(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)
	ctx := context.Background()

	setup.saveClient(t, &storage.Client{
		ID:           "c1",
		RedirectURIs: []string{"https://app.example.com/callback"},
	})

	// Persist an already-expired code directly; the grant must re-check
	// expiry even when the store hands the record back
	expired := &storage.AuthorizationCode{
		Code:        "expired-code",
		ClientID:    "c1",
		RedirectURI: "https://app.example.com/callback",
		Scope:       "openid",
		UserID:      "s1",
		CreatedAt:   time.Now().Add(-2 * time.Minute),
		ExpiresAt:   time.Now().Add(-1 * time.Minute),
	}
	if err := setup.store.SaveAuthorizationCode(ctx, expired); err != nil {
		t.Fatalf("Failed to save code: %v", err)
	}

	_, err := srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:   oidc.GrantTypeAuthorizationCode,
		Code:        "expired-code",
		RedirectURI: "https://app.example.com/callback",
		ClientID:    "c1",
	})
	wantOAuthCode(t, err, oidc.ErrorCodeInvalidGrant)
}

func TestAuthorizationCodeGrant_PKCE(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)
	ctx := context.Background()

	setup.saveClient(t, &storage.Client{
		ID:           "native-app",
		RedirectURIs: []string{"http://127.0.0.1:8765/callback"},
		RequirePKCE:  true,
	})

	verifier := strings.Repeat("v", 50)
	hash := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	newCode := func() string {
		return issueCode(t, srv, &AuthorizationRequest{
			ClientID:            "native-app",
			ResponseType:        "code",
			RedirectURI:         "http://127.0.0.1:8765/callback",
			Scope:               "openid",
			CodeChallenge:       challenge,
			CodeChallengeMethod: oidc.CodeChallengeMethodS256,
		}, "s1", "")
	}

	resp, err := srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:    oidc.GrantTypeAuthorizationCode,
		Code:         newCode(),
		RedirectURI:  "http://127.0.0.1:8765/callback",
		ClientID:     "native-app",
		CodeVerifier: verifier,
	})
	if err != nil {
		t.Fatalf("Expected PKCE exchange to succeed, got: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("Expected an access token")
	}

	_, err = srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:    oidc.GrantTypeAuthorizationCode,
		Code:         newCode(),
		RedirectURI:  "http://127.0.0.1:8765/callback",
		ClientID:     "native-app",
		CodeVerifier: strings.Repeat("w", 50),
	})
	wantOAuthCode(t, err, oidc.ErrorCodeInvalidGrant)

	_, err = srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:   oidc.GrantTypeAuthorizationCode,
		Code:        newCode(),
		RedirectURI: "http://127.0.0.1:8765/callback",
		ClientID:    "native-app",
	})
	wantOAuthCode(t, err, oidc.ErrorCodeInvalidGrant)
}

func TestRefreshTokenIssuance(t *testing.T) {
	no := false
	yes := true

	tests := []struct {
		name        string
		scope       string
		allow       *bool
		wantRefresh bool
	}{
		{"offline_access with nil flag", "openid offline_access", nil, true},
		{"offline_access explicitly allowed", "openid offline_access", &yes, true},
		{"offline_access explicitly denied", "openid offline_access", &no, false},
		{"no offline_access scope", "openid profile", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup := newTestSetup(t)
			srv := setup.createServer(t, nil)

			setup.saveClient(t, &storage.Client{
				ID:                 "c1",
				RedirectURIs:       []string{"https://app.example.com/callback"},
				AllowOfflineAccess: tt.allow,
			})
			code := issueCode(t, srv, &AuthorizationRequest{
				ClientID:     "c1",
				ResponseType: "code",
				RedirectURI:  "https://app.example.com/callback",
				Scope:        tt.scope,
			}, "s1", "")

			resp, err := srv.HandleTokenRequest(context.Background(), &TokenRequest{
				GrantType:   oidc.GrantTypeAuthorizationCode,
				Code:        code,
				RedirectURI: "https://app.example.com/callback",
				ClientID:    "c1",
			})
			if err != nil {
				t.Fatalf("Expected exchange to succeed, got: %v", err)
			}
			if got := resp.RefreshToken != ""; got != tt.wantRefresh {
				t.Errorf("Expected refresh token presence %v, got %v", tt.wantRefresh, got)
			}
		})
	}
}

func TestRefreshTokenGrant(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)
	ctx := context.Background()

	setup.saveClient(t, &storage.Client{
		ID:           "c1",
		RedirectURIs: []string{"https://app.example.com/callback"},
	})
	code := issueCode(t, srv, &AuthorizationRequest{
		ClientID:     "c1",
		ResponseType: "code",
		RedirectURI:  "https://app.example.com/callback",
		Scope:        "openid offline_access",
	}, "s1", "")

	first, err := srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:   oidc.GrantTypeAuthorizationCode,
		Code:        code,
		RedirectURI: "https://app.example.com/callback",
		ClientID:    "c1",
	})
	if err != nil {
		t.Fatalf("Expected exchange to succeed, got: %v", err)
	}
	if first.RefreshToken == "" {
		t.Fatal("Expected a refresh token")
	}

	refreshed, err := srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:    oidc.GrantTypeRefreshToken,
		RefreshToken: first.RefreshToken,
		ClientID:     "c1",
	})
	if err != nil {
		t.Fatalf("Expected refresh to succeed, got: %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.AccessToken == first.AccessToken {
		t.Error("Expected a fresh access token")
	}
	if refreshed.IDToken == "" {
		t.Error("Expected a fresh ID token")
	}
	if refreshed.RefreshToken != "" {
		t.Error("Expected no new refresh token from the refresh grant")
	}
	if refreshed.Scope != "openid offline_access" {
		t.Errorf("Expected original scope to carry over, got %q", refreshed.Scope)
	}

	// Without rotation the same refresh token keeps working
	if _, err := srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:    oidc.GrantTypeRefreshToken,
		RefreshToken: first.RefreshToken,
		ClientID:     "c1",
	}); err != nil {
		t.Fatalf("Expected second refresh to succeed, got: %v", err)
	}
}

func TestRefreshTokenGrant_Rotation(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)
	ctx := context.Background()

	setup.saveClient(t, &storage.Client{
		ID:                  "c1",
		RedirectURIs:        []string{"https://app.example.com/callback"},
		RotateRefreshTokens: true,
	})
	code := issueCode(t, srv, &AuthorizationRequest{
		ClientID:     "c1",
		ResponseType: "code",
		RedirectURI:  "https://app.example.com/callback",
		Scope:        "openid offline_access",
	}, "s1", "")

	first, err := srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:   oidc.GrantTypeAuthorizationCode,
		Code:        code,
		RedirectURI: "https://app.example.com/callback",
		ClientID:    "c1",
	})
	if err != nil {
		t.Fatalf("Expected exchange to succeed, got: %v", err)
	}

	if _, err := srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:    oidc.GrantTypeRefreshToken,
		RefreshToken: first.RefreshToken,
		ClientID:     "c1",
	}); err != nil {
		t.Fatalf("Expected refresh to succeed, got: %v", err)
	}

	// The rotated token must be dead
	_, err = srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:    oidc.GrantTypeRefreshToken,
		RefreshToken: first.RefreshToken,
		ClientID:     "c1",
	})
	wantOAuthCode(t, err, oidc.ErrorCodeInvalidGrant)
}

// recordingTokenStore tracks every refresh token persisted through it
type recordingTokenStore struct {
	storage.TokenStore
	savedRefresh []string
}

func (r *recordingTokenStore) SaveRefreshToken(ctx context.Context, token *storage.Token) error {
	r.savedRefresh = append(r.savedRefresh, token.Value)
	return r.TokenStore.SaveRefreshToken(ctx, token)
}

func TestRefreshTokenGrant_PersistsNoNewToken(t *testing.T) {
	setup := newTestSetup(t)
	tokens := &recordingTokenStore{TokenStore: setup.store}
	srv, err := New(setup.store, tokens, setup.store, setup.store, setup.keys, &Config{Issuer: testIssuer}, setup.logger)
	if err != nil {
		t.Fatalf("Expected server to be created, got: %v", err)
	}
	ctx := context.Background()

	setup.saveClient(t, &storage.Client{
		ID:           "c1",
		RedirectURIs: []string{"https://app.example.com/callback"},
	})
	code := issueCode(t, srv, &AuthorizationRequest{
		ClientID:     "c1",
		ResponseType: "code",
		RedirectURI:  "https://app.example.com/callback",
		Scope:        "openid offline_access",
	}, "s1", "")

	first, err := srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:   oidc.GrantTypeAuthorizationCode,
		Code:        code,
		RedirectURI: "https://app.example.com/callback",
		ClientID:    "c1",
	})
	if err != nil {
		t.Fatalf("Expected exchange to succeed, got: %v", err)
	}
	if len(tokens.savedRefresh) != 1 || tokens.savedRefresh[0] != first.RefreshToken {
		t.Fatalf("Expected exactly the disclosed refresh token to be persisted, got %d saves", len(tokens.savedRefresh))
	}

	// Every refresh token in the store must have been disclosed to a
	// client; a refresh must not leave undisclosed live credentials behind
	for i := 0; i < 2; i++ {
		if _, err := srv.HandleTokenRequest(ctx, &TokenRequest{
			GrantType:    oidc.GrantTypeRefreshToken,
			RefreshToken: first.RefreshToken,
			ClientID:     "c1",
		}); err != nil {
			t.Fatalf("Expected refresh %d to succeed, got: %v", i+1, err)
		}
	}
	if len(tokens.savedRefresh) != 1 {
		t.Errorf("Expected the refresh grant to persist no refresh tokens, got %d extra", len(tokens.savedRefresh)-1)
	}
}

func TestTokenIssuance_AuditRecordsGrantType(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)
	srv.SetAuditor(security.NewAuditor(setup.logger, true))
	ctx := context.Background()

	setup.saveClient(t, &storage.Client{
		ID:           "c1",
		RedirectURIs: []string{"https://app.example.com/callback"},
	})
	code := issueCode(t, srv, &AuthorizationRequest{
		ClientID:     "c1",
		ResponseType: "code",
		RedirectURI:  "https://app.example.com/callback",
		Scope:        "openid offline_access",
	}, "s1", "")

	first, err := srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:   oidc.GrantTypeAuthorizationCode,
		Code:        code,
		RedirectURI: "https://app.example.com/callback",
		ClientID:    "c1",
	})
	if err != nil {
		t.Fatalf("Expected exchange to succeed, got: %v", err)
	}
	if !strings.Contains(setup.logBuf.String(), "grant_type:authorization_code") {
		t.Error("Expected the audit event to carry grant_type authorization_code")
	}

	setup.logBuf.Reset()
	if _, err := srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:    oidc.GrantTypeRefreshToken,
		RefreshToken: first.RefreshToken,
		ClientID:     "c1",
	}); err != nil {
		t.Fatalf("Expected refresh to succeed, got: %v", err)
	}
	if !strings.Contains(setup.logBuf.String(), "grant_type:refresh_token") {
		t.Error("Expected the audit event to carry grant_type refresh_token")
	}
}

func TestRefreshTokenGrant_Failures(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)
	ctx := context.Background()

	_, err := srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType: oidc.GrantTypeRefreshToken,
		ClientID:  "c1",
	})
	wantOAuthCode(t, err, oidc.ErrorCodeInvalidRequest)

	_, err = srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:    oidc.GrantTypeRefreshToken,
		RefreshToken: "no-such-token",
		ClientID:     "c1",
	})
	wantOAuthCode(t, err, oidc.ErrorCodeInvalidGrant)
}

func TestClientCredentialsGrant(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)
	ctx := context.Background()

	setup.saveClient(t, &storage.Client{
		ID:                     "service-a",
		Secret:                 "topsecret",
		AllowClientCredentials: true,
	})
	setup.saveClient(t, &storage.Client{
		ID:     "service-b",
		Secret: "topsecret",
	})

	resp, err := srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:    oidc.GrantTypeClientCredentials,
		ClientID:     "service-a",
		ClientSecret: "topsecret",
		Scope:        "api:read",
	})
	if err != nil {
		t.Fatalf("Expected client_credentials grant to succeed, got: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("Expected an access token")
	}
	if resp.IDToken != "" {
		t.Error("Expected no ID token for client_credentials")
	}
	if resp.RefreshToken != "" {
		t.Error("Expected no refresh token for client_credentials")
	}

	// The token's subject is the client itself
	intro := srv.IntrospectToken(ctx, resp.AccessToken)
	if !intro.Active {
		t.Fatal("Expected issued token to be active")
	}
	if intro.Sub != "service-a" {
		t.Errorf("Expected sub service-a, got %q", intro.Sub)
	}

	_, err = srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:    oidc.GrantTypeClientCredentials,
		ClientID:     "service-b",
		ClientSecret: "topsecret",
	})
	wantOAuthCode(t, err, oidc.ErrorCodeUnauthorizedClient)

	_, err = srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType:    oidc.GrantTypeClientCredentials,
		ClientID:     "service-a",
		ClientSecret: "wrong",
	})
	wantOAuthCode(t, err, oidc.ErrorCodeInvalidClient)

	_, err = srv.HandleTokenRequest(ctx, &TokenRequest{
		GrantType: oidc.GrantTypeClientCredentials,
		ClientID:  "service-a",
	})
	wantOAuthCode(t, err, oidc.ErrorCodeInvalidClient)
}

func TestHandleTokenRequest_UnsupportedGrantType(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)

	_, err := srv.HandleTokenRequest(context.Background(), &TokenRequest{
		GrantType: "urn:ietf:params:oauth:grant-type:device_code",
	})
	wantOAuthCode(t, err, oidc.ErrorCodeUnsupportedGrantType)
}
