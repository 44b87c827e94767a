package server

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	oidc "github.com/giantswarm/oidc-core"
	"github.com/giantswarm/oidc-core/storage"
)

func TestValidateAuthorizationRequest(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)
	ctx := context.Background()

	setup.saveClient(t, &storage.Client{
		ID:           "web-app",
		RedirectURIs: []string{"https://app.example.com/callback"},
	})
	setup.saveClient(t, &storage.Client{
		ID:           "strict-app",
		RedirectURIs: []string{"https://strict.example.com/callback"},
		RequirePKCE:  true,
	})

	tests := []struct {
		name     string
		req      *AuthorizationRequest
		wantCode string
	}{
		{
			name: "valid request",
			req: &AuthorizationRequest{
				ClientID:     "web-app",
				ResponseType: "code",
				RedirectURI:  "https://app.example.com/callback",
				Scope:        "openid profile",
			},
		},
		{
			name: "missing client_id",
			req: &AuthorizationRequest{
				ResponseType: "code",
				RedirectURI:  "https://app.example.com/callback",
			},
			wantCode: oidc.ErrorCodeInvalidRequest,
		},
		{
			name: "missing response_type",
			req: &AuthorizationRequest{
				ClientID:    "web-app",
				RedirectURI: "https://app.example.com/callback",
			},
			wantCode: oidc.ErrorCodeInvalidRequest,
		},
		{
			name: "missing redirect_uri",
			req: &AuthorizationRequest{
				ClientID:     "web-app",
				ResponseType: "code",
			},
			wantCode: oidc.ErrorCodeInvalidRequest,
		},
		{
			name: "unknown client",
			req: &AuthorizationRequest{
				ClientID:     "ghost",
				ResponseType: "code",
				RedirectURI:  "https://app.example.com/callback",
			},
			wantCode: oidc.ErrorCodeUnauthorizedClient,
		},
		{
			name: "unregistered redirect_uri",
			req: &AuthorizationRequest{
				ClientID:     "web-app",
				ResponseType: "code",
				RedirectURI:  "https://evil.example.com/callback",
			},
			wantCode: oidc.ErrorCodeInvalidRequest,
		},
		{
			name: "redirect_uri with trailing slash is not the registered URI",
			req: &AuthorizationRequest{
				ClientID:     "web-app",
				ResponseType: "code",
				RedirectURI:  "https://app.example.com/callback/",
			},
			wantCode: oidc.ErrorCodeInvalidRequest,
		},
		{
			name: "implicit flow disabled",
			req: &AuthorizationRequest{
				ClientID:     "web-app",
				ResponseType: "token",
				RedirectURI:  "https://app.example.com/callback",
			},
			wantCode: oidc.ErrorCodeUnsupportedResponseType,
		},
		{
			name: "hybrid flow disabled",
			req: &AuthorizationRequest{
				ClientID:     "web-app",
				ResponseType: "code id_token",
				RedirectURI:  "https://app.example.com/callback",
			},
			wantCode: oidc.ErrorCodeUnsupportedResponseType,
		},
		{
			name: "unknown response_type",
			req: &AuthorizationRequest{
				ClientID:     "web-app",
				ResponseType: "device_code",
				RedirectURI:  "https://app.example.com/callback",
			},
			wantCode: oidc.ErrorCodeUnsupportedResponseType,
		},
		{
			name: "PKCE required but challenge missing",
			req: &AuthorizationRequest{
				ClientID:     "strict-app",
				ResponseType: "code",
				RedirectURI:  "https://strict.example.com/callback",
			},
			wantCode: oidc.ErrorCodeInvalidRequest,
		},
		{
			name: "plain challenge method rejected",
			req: &AuthorizationRequest{
				ClientID:            "strict-app",
				ResponseType:        "code",
				RedirectURI:         "https://strict.example.com/callback",
				CodeChallenge:       "some-challenge-value",
				CodeChallengeMethod: "plain",
			},
			wantCode: oidc.ErrorCodeInvalidRequest,
		},
		{
			name: "scope without openid",
			req: &AuthorizationRequest{
				ClientID:     "web-app",
				ResponseType: "code",
				RedirectURI:  "https://app.example.com/callback",
				Scope:        "profile email",
			},
			wantCode: oidc.ErrorCodeInvalidScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := srv.ValidateAuthorizationRequest(ctx, tt.req)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Expected request to be valid, got: %v", err)
				}
				return
			}
			var oauthErr *oidc.OAuthError
			if !errors.As(err, &oauthErr) {
				t.Fatalf("Expected *oidc.OAuthError, got %T: %v", err, err)
			}
			if oauthErr.Code != tt.wantCode {
				t.Errorf("Expected error code %q, got %q (%s)", tt.wantCode, oauthErr.Code, oauthErr.Description)
			}
		})
	}
}

func TestValidateAuthorizationRequest_EnabledFlows(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, &Config{
		Issuer: testIssuer,
		Flows:  Flows{AuthorizationCode: true, Implicit: true, Hybrid: true},
	})
	setup.saveClient(t, &storage.Client{
		ID:           "web-app",
		RedirectURIs: []string{"https://app.example.com/callback"},
	})

	for _, rt := range []string{"code", "token", "id_token", "code id_token", "code token id_token"} {
		err := srv.ValidateAuthorizationRequest(context.Background(), &AuthorizationRequest{
			ClientID:     "web-app",
			ResponseType: rt,
			RedirectURI:  "https://app.example.com/callback",
			Scope:        "openid",
		})
		if err != nil {
			t.Errorf("Expected response_type %q to be accepted, got: %v", rt, err)
		}
	}
}

func TestValidatePKCE(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)

	verifier := strings.Repeat("a", 43)
	hash := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	tests := []struct {
		name       string
		challenge  string
		method     string
		verifier   string
		allowPlain bool
		wantErr    bool
	}{
		{"no challenge means no PKCE", "", "S256", "", false, false},
		{"valid S256", challenge, "S256", verifier, false, false},
		{"wrong verifier", challenge, "S256", strings.Repeat("b", 43), false, true},
		{"missing verifier", challenge, "S256", "", false, true},
		{"verifier too short", challenge, "S256", strings.Repeat("a", 42), false, true},
		{"verifier too long", challenge, "S256", strings.Repeat("a", 129), false, true},
		{"verifier with invalid characters", challenge, "S256", strings.Repeat("a", 42) + "!", false, true},
		{"plain allowed", verifier, "plain", verifier, true, false},
		{"plain rejected when not allowed", verifier, "plain", verifier, false, true},
		{"unknown method", challenge, "S512", verifier, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := srv.validatePKCE(tt.challenge, tt.method, tt.verifier, tt.allowPlain)
			if tt.wantErr && err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestScopeContains(t *testing.T) {
	tests := []struct {
		scope  string
		target string
		want   bool
	}{
		{"openid profile email", "openid", true},
		{"openid profile email", "email", true},
		{"openid profile", "offline_access", false},
		{"openidextra", "openid", false},
		{"", "openid", false},
	}

	for _, tt := range tests {
		if got := scopeContains(tt.scope, tt.target); got != tt.want {
			t.Errorf("scopeContains(%q, %q) = %v, want %v", tt.scope, tt.target, got, tt.want)
		}
	}
}
