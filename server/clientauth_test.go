package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	oidc "github.com/giantswarm/oidc-core"
	"github.com/giantswarm/oidc-core/storage"
)

func TestAuthenticateClient_SharedSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash secret: %v", err)
	}

	tests := []struct {
		name    string
		client  *storage.Client
		req     *TokenRequest
		wantErr bool
	}{
		{
			name:   "public client without method or secret",
			client: &storage.Client{ID: "pub"},
			req:    &TokenRequest{ClientID: "pub"},
		},
		{
			name:   "auth method none",
			client: &storage.Client{ID: "pub", TokenEndpointAuthMethod: oidc.AuthMethodNone},
			req:    &TokenRequest{ClientID: "pub"},
		},
		{
			name:   "client_secret_basic valid",
			client: &storage.Client{ID: "c1", Secret: "s3cret", TokenEndpointAuthMethod: oidc.AuthMethodClientSecretBasic},
			req:    &TokenRequest{ClientID: "c1", ClientSecret: "s3cret"},
		},
		{
			name:   "client_secret_post valid",
			client: &storage.Client{ID: "c1", Secret: "s3cret", TokenEndpointAuthMethod: oidc.AuthMethodClientSecretPost},
			req:    &TokenRequest{ClientID: "c1", ClientSecret: "s3cret"},
		},
		{
			name:    "wrong secret",
			client:  &storage.Client{ID: "c1", Secret: "s3cret", TokenEndpointAuthMethod: oidc.AuthMethodClientSecretBasic},
			req:     &TokenRequest{ClientID: "c1", ClientSecret: "nope"},
			wantErr: true,
		},
		{
			name:    "missing secret",
			client:  &storage.Client{ID: "c1", Secret: "s3cret", TokenEndpointAuthMethod: oidc.AuthMethodClientSecretBasic},
			req:     &TokenRequest{ClientID: "c1"},
			wantErr: true,
		},
		{
			name:    "secret configured but no method treats basic as default",
			client:  &storage.Client{ID: "c1", Secret: "s3cret"},
			req:     &TokenRequest{ClientID: "c1"},
			wantErr: true,
		},
		{
			name:   "bcrypt-hashed secret valid",
			client: &storage.Client{ID: "c2", SecretHash: string(hash), TokenEndpointAuthMethod: oidc.AuthMethodClientSecretBasic},
			req:    &TokenRequest{ClientID: "c2", ClientSecret: "hashed-secret"},
		},
		{
			name:    "bcrypt-hashed secret wrong",
			client:  &storage.Client{ID: "c2", SecretHash: string(hash), TokenEndpointAuthMethod: oidc.AuthMethodClientSecretBasic},
			req:     &TokenRequest{ClientID: "c2", ClientSecret: "nope"},
			wantErr: true,
		},
		{
			name:    "unknown auth method",
			client:  &storage.Client{ID: "c1", TokenEndpointAuthMethod: "tls_client_auth"},
			req:     &TokenRequest{ClientID: "c1"},
			wantErr: true,
		},
	}

	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := srv.authenticateClient(context.Background(), tt.client, tt.req)
			if tt.wantErr && err == nil {
				t.Fatal("Expected authentication to fail, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Expected authentication to succeed, got: %v", err)
			}
		})
	}
}

// signAssertion builds a client-assertion JWT with the given claims
func signAssertion(t *testing.T, method jwt.SigningMethod, key any, kid string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("Failed to sign assertion: %v", err)
	}
	return signed
}

func assertionClaims(issuer, clientID string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss": clientID,
		"sub": clientID,
		"aud": issuer,
		"exp": time.Now().Add(time.Minute).Unix(),
		"iat": time.Now().Unix(),
	}
}

func TestAuthenticateClient_ClientSecretJWT(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)
	ctx := context.Background()

	client := &storage.Client{
		ID:                      "jwt-client",
		Secret:                  "a-shared-hmac-secret-of-sufficient-length",
		TokenEndpointAuthMethod: oidc.AuthMethodClientSecretJWT,
	}

	sign := func(claims jwt.MapClaims) string {
		return signAssertion(t, jwt.SigningMethodHS256, []byte(client.Secret), "", claims)
	}

	valid := sign(assertionClaims(testIssuer, client.ID))
	err := srv.authenticateClient(ctx, client, &TokenRequest{
		ClientID:            client.ID,
		ClientAssertion:     valid,
		ClientAssertionType: oidc.ClientAssertionTypeJWTBearer,
	})
	if err != nil {
		t.Fatalf("Expected HMAC assertion to verify, got: %v", err)
	}

	tests := []struct {
		name string
		req  *TokenRequest
	}{
		{
			name: "missing assertion",
			req:  &TokenRequest{ClientID: client.ID, ClientAssertionType: oidc.ClientAssertionTypeJWTBearer},
		},
		{
			name: "wrong assertion type",
			req: &TokenRequest{
				ClientID:            client.ID,
				ClientAssertion:     valid,
				ClientAssertionType: "urn:example:wrong",
			},
		},
		{
			name: "wrong secret",
			req: &TokenRequest{
				ClientID:            client.ID,
				ClientAssertion:     signAssertion(t, jwt.SigningMethodHS256, []byte("other-secret"), "", assertionClaims(testIssuer, client.ID)),
				ClientAssertionType: oidc.ClientAssertionTypeJWTBearer,
			},
		},
		{
			name: "wrong issuer claim",
			req: &TokenRequest{
				ClientID:            client.ID,
				ClientAssertion:     sign(assertionClaims(testIssuer, "someone-else")),
				ClientAssertionType: oidc.ClientAssertionTypeJWTBearer,
			},
		},
		{
			name: "wrong audience",
			req: &TokenRequest{
				ClientID:            client.ID,
				ClientAssertion:     sign(assertionClaims("https://other-op.example.com", client.ID)),
				ClientAssertionType: oidc.ClientAssertionTypeJWTBearer,
			},
		},
		{
			name: "missing expiry",
			req: &TokenRequest{
				ClientID: client.ID,
				ClientAssertion: sign(jwt.MapClaims{
					"iss": client.ID,
					"sub": client.ID,
					"aud": testIssuer,
				}),
				ClientAssertionType: oidc.ClientAssertionTypeJWTBearer,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := srv.authenticateClient(ctx, client, tt.req); err == nil {
				t.Fatal("Expected authentication to fail, got nil")
			}
		})
	}
}

func TestAuthenticateClient_PrivateKeyJWT(t *testing.T) {
	setup := newTestSetup(t)
	srv := setup.createServer(t, nil)
	ctx := context.Background()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	jwks, err := json.Marshal(jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{Key: &priv.PublicKey, KeyID: "rp-key-1", Use: "sig", Algorithm: "RS256"}},
	})
	if err != nil {
		t.Fatalf("Failed to marshal JWKS: %v", err)
	}

	client := &storage.Client{
		ID:                      "pk-client",
		TokenEndpointAuthMethod: oidc.AuthMethodPrivateKeyJWT,
		JWKS:                    string(jwks),
	}

	valid := signAssertion(t, jwt.SigningMethodRS256, priv, "rp-key-1", assertionClaims(testIssuer, client.ID))
	err = srv.authenticateClient(ctx, client, &TokenRequest{
		ClientID:            client.ID,
		ClientAssertion:     valid,
		ClientAssertionType: oidc.ClientAssertionTypeJWTBearer,
	})
	if err != nil {
		t.Fatalf("Expected private key assertion to verify, got: %v", err)
	}

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}

	tests := []struct {
		name      string
		client    *storage.Client
		assertion string
	}{
		{
			name:      "signed with an unpublished key",
			client:    client,
			assertion: signAssertion(t, jwt.SigningMethodRS256, otherKey, "rp-key-1", assertionClaims(testIssuer, client.ID)),
		},
		{
			name:   "HMAC assertion rejected for private_key_jwt",
			client: client,
			assertion: signAssertion(t, jwt.SigningMethodHS256, []byte("shared"), "",
				assertionClaims(testIssuer, client.ID)),
		},
		{
			name: "client without JWKS",
			client: &storage.Client{
				ID:                      "pk-client",
				TokenEndpointAuthMethod: oidc.AuthMethodPrivateKeyJWT,
			},
			assertion: valid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := srv.authenticateClient(ctx, tt.client, &TokenRequest{
				ClientID:            tt.client.ID,
				ClientAssertion:     tt.assertion,
				ClientAssertionType: oidc.ClientAssertionTypeJWTBearer,
			})
			if err == nil {
				t.Fatal("Expected authentication to fail, got nil")
			}
		})
	}
}
