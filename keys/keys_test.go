package keys

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate EC key: %v", err)
	}
	return key
}

func testClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss": "https://op.example.com",
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

func TestStaticManager_SignAndVerify(t *testing.T) {
	key := testECKey(t)
	m, err := NewFromSigner(key, "", "")
	if err != nil {
		t.Fatalf("Expected manager to be created, got: %v", err)
	}

	signed, err := m.SignJWT(testClaims())
	if err != nil {
		t.Fatalf("Expected signing to succeed, got: %v", err)
	}

	// The token must verify against the public key and carry the kid header
	token, err := jwt.Parse(signed, func(token *jwt.Token) (any, error) {
		return key.Public(), nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		t.Fatalf("Expected token to verify, got: %v", err)
	}

	sk, err := m.SigningKey(context.Background())
	if err != nil {
		t.Fatalf("Expected signing key, got: %v", err)
	}
	if kid, _ := token.Header["kid"].(string); kid != sk.KeyID {
		t.Errorf("Expected kid %q in header, got %q", sk.KeyID, kid)
	}
	if sk.Algorithm != "ES256" {
		t.Errorf("Expected derived algorithm ES256, got %q", sk.Algorithm)
	}
}

func TestStaticManager_JWKS(t *testing.T) {
	m, err := NewFromSigner(testECKey(t), "my-kid", "")
	if err != nil {
		t.Fatalf("Expected manager to be created, got: %v", err)
	}

	jwks, err := m.JWKS(context.Background())
	if err != nil {
		t.Fatalf("Expected JWKS, got: %v", err)
	}
	if len(jwks.Keys) != 1 {
		t.Fatalf("Expected 1 key, got %d", len(jwks.Keys))
	}
	jwk := jwks.Keys[0]
	if jwk.KeyID != "my-kid" {
		t.Errorf("Expected kid my-kid, got %q", jwk.KeyID)
	}
	if jwk.Use != "sig" {
		t.Errorf("Expected use sig, got %q", jwk.Use)
	}
	if !jwk.IsPublic() {
		t.Error("Expected only the public key to be published")
	}
}

func TestSignWithSecret(t *testing.T) {
	m, err := NewFromSigner(testECKey(t), "", "")
	if err != nil {
		t.Fatalf("Expected manager to be created, got: %v", err)
	}

	secret := []byte("a-shared-secret")
	signed, err := m.SignWithSecret(testClaims(), secret, "HS256")
	if err != nil {
		t.Fatalf("Expected HMAC signing to succeed, got: %v", err)
	}
	if _, err := jwt.Parse(signed, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"})); err != nil {
		t.Fatalf("Expected HMAC token to verify, got: %v", err)
	}

	// Asymmetric algorithms must be refused to prevent key confusion
	if _, err := m.SignWithSecret(testClaims(), secret, "ES256"); err == nil {
		t.Fatal("Expected non-HMAC algorithm to be rejected, got nil")
	}
	if _, err := m.SignWithSecret(testClaims(), secret, "RS256"); err == nil {
		t.Fatal("Expected non-HMAC algorithm to be rejected, got nil")
	}
}

func TestGeneratingManager(t *testing.T) {
	m := NewGenerating("", nil)

	first, err := m.SigningKey(context.Background())
	if err != nil {
		t.Fatalf("Expected key generation, got: %v", err)
	}
	if first.Algorithm != DefaultAlgorithm {
		t.Errorf("Expected default algorithm %s, got %q", DefaultAlgorithm, first.Algorithm)
	}
	if first.KeyID == "" {
		t.Error("Expected a derived key ID")
	}

	// The key is generated once and reused
	second, err := m.SigningKey(context.Background())
	if err != nil {
		t.Fatalf("Expected signing key, got: %v", err)
	}
	if first.KeyID != second.KeyID {
		t.Error("Expected the same key on repeated calls")
	}

	signed, err := m.SignJWT(testClaims())
	if err != nil {
		t.Fatalf("Expected signing to succeed, got: %v", err)
	}
	pub := first.Key.Public()
	if _, err := jwt.Parse(signed, func(*jwt.Token) (any, error) {
		return pub, nil
	}, jwt.WithValidMethods([]string{"ES256"})); err != nil {
		t.Fatalf("Expected token to verify against the generated key, got: %v", err)
	}
}

func TestGeneratingManager_UnsupportedAlgorithm(t *testing.T) {
	m := NewGenerating("RS256", nil)
	if _, err := m.SigningKey(context.Background()); err == nil {
		t.Fatal("Expected error for non-EC generation algorithm, got nil")
	}
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()

	ecKey := testECKey(t)
	ecDER, err := x509.MarshalECPrivateKey(ecKey)
	if err != nil {
		t.Fatalf("Failed to marshal EC key: %v", err)
	}
	ecPath := filepath.Join(dir, "ec.pem")
	if err := os.WriteFile(ecPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: ecDER}), 0o600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	rsaPath := filepath.Join(dir, "rsa.pem")
	if err := os.WriteFile(rsaPath, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey)}), 0o600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}

	badPath := filepath.Join(dir, "bad.pem")
	if err := os.WriteFile(badPath, []byte("not a pem file"), 0o600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantAlg string
		wantErr bool
	}{
		{"SEC1 EC key", ecPath, "ES256", false},
		{"PKCS1 RSA key", rsaPath, "RS256", false},
		{"not PEM", badPath, "", true},
		{"missing file", filepath.Join(dir, "nope.pem"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewFromFile(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected key to load, got: %v", err)
			}
			sk, err := m.SigningKey(context.Background())
			if err != nil {
				t.Fatalf("Expected signing key, got: %v", err)
			}
			if sk.Algorithm != tt.wantAlg {
				t.Errorf("Expected algorithm %q, got %q", tt.wantAlg, sk.Algorithm)
			}
		})
	}
}

func TestDeriveKeyID_Stable(t *testing.T) {
	key := testECKey(t)

	first, err := DeriveKeyID(key)
	if err != nil {
		t.Fatalf("Expected thumbprint, got: %v", err)
	}
	second, err := DeriveKeyID(key)
	if err != nil {
		t.Fatalf("Expected thumbprint, got: %v", err)
	}
	if first != second {
		t.Error("Expected the thumbprint to be stable for the same key")
	}

	other, err := DeriveKeyID(testECKey(t))
	if err != nil {
		t.Fatalf("Expected thumbprint, got: %v", err)
	}
	if first == other {
		t.Error("Expected different keys to have different thumbprints")
	}
}

func TestValidateAlgorithmForKey(t *testing.T) {
	ecKey := testECKey(t)
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}

	cases := []struct {
		name    string
		run     func() error
		wantErr bool
	}{
		{"RS256 for RSA", func() error { return ValidateAlgorithmForKey("RS256", rsaKey) }, false},
		{"PS384 for RSA", func() error { return ValidateAlgorithmForKey("PS384", rsaKey) }, false},
		{"ES256 for RSA", func() error { return ValidateAlgorithmForKey("ES256", rsaKey) }, true},
		{"ES256 for P-256", func() error { return ValidateAlgorithmForKey("ES256", ecKey) }, false},
		{"ES384 for P-256", func() error { return ValidateAlgorithmForKey("ES384", ecKey) }, true},
		{"RS256 for EC", func() error { return ValidateAlgorithmForKey("RS256", ecKey) }, true},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if tt.wantErr && err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
		})
	}
}
