// Package keys implements the signing key manager for the OpenID Provider.
//
// The provider core never touches private key material directly; it asks the
// Manager to sign ID tokens, logout tokens, and JWT access tokens, and to
// publish the provider JWKS. Keys from other parties (client JWKS documents)
// are handled separately by the clientkeys package.
package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultAlgorithm is used when no signing algorithm is configured.
const DefaultAlgorithm = "ES256"

// SigningKey bundles a private key with its identifier and JWS algorithm.
type SigningKey struct {
	KeyID     string
	Algorithm string
	Key       crypto.Signer
}

// Manager provides signing operations and the provider JWKS.
// Implementations handle key sourcing (file, memory, generation).
type Manager interface {
	// SigningKey returns the current signing key.
	SigningKey(ctx context.Context) (*SigningKey, error)

	// SignJWT signs the claims with the current signing key. The kid and alg
	// headers are set from the key.
	SignJWT(claims jwt.MapClaims) (string, error)

	// SignWithSecret signs the claims with a shared secret using an HMAC
	// algorithm ("HS256", "HS384", "HS512").
	SignWithSecret(claims jwt.MapClaims, secret []byte, alg string) (string, error)

	// JWKS returns the provider's public JWK Set document.
	JWKS(ctx context.Context) (*jose.JSONWebKeySet, error)
}

// StaticManager is a Manager backed by a single fixed signing key.
type StaticManager struct {
	key *SigningKey
}

// NewFromSigner creates a StaticManager from an existing private key.
// If keyID or algorithm are empty they are derived from the key
// (RFC 7638 thumbprint, algorithm by key type and curve).
func NewFromSigner(signer crypto.Signer, keyID, algorithm string) (*StaticManager, error) {
	params, err := DeriveSigningKeyParams(signer, keyID, algorithm)
	if err != nil {
		return nil, err
	}
	return &StaticManager{key: params}, nil
}

// NewFromFile creates a StaticManager from a PEM-encoded private key file.
// Supports RSA (PKCS1/PKCS8) and ECDSA (SEC1/PKCS8) keys.
func NewFromFile(keyPath string) (*StaticManager, error) {
	signer, err := LoadSigningKey(keyPath)
	if err != nil {
		return nil, err
	}
	return NewFromSigner(signer, "", "")
}

// SigningKey returns a copy of the signing key to prevent external mutation
// of internal state.
func (m *StaticManager) SigningKey(_ context.Context) (*SigningKey, error) {
	keyCopy := *m.key
	return &keyCopy, nil
}

// SignJWT signs the claims with the manager's key
func (m *StaticManager) SignJWT(claims jwt.MapClaims) (string, error) {
	method := jwt.GetSigningMethod(m.key.Algorithm)
	if method == nil {
		return "", fmt.Errorf("unknown signing algorithm: %s", m.key.Algorithm)
	}

	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = m.key.KeyID

	signed, err := token.SignedString(m.key.Key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// SignWithSecret signs the claims with a shared secret using an HMAC algorithm
func (m *StaticManager) SignWithSecret(claims jwt.MapClaims, secret []byte, alg string) (string, error) {
	method := jwt.GetSigningMethod(alg)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return "", fmt.Errorf("algorithm %s is not an HMAC algorithm", alg)
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// JWKS returns the public JWK Set for the manager's key
func (m *StaticManager) JWKS(_ context.Context) (*jose.JSONWebKeySet, error) {
	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       m.key.Key.Public(),
			KeyID:     m.key.KeyID,
			Algorithm: m.key.Algorithm,
			Use:       "sig",
		}},
	}, nil
}

// GeneratingManager generates an ephemeral ECDSA key on first use.
// Suitable for development but NOT recommended for production: generated
// keys are lost on restart, invalidating all issued tokens.
type GeneratingManager struct {
	algorithm string
	logger    *slog.Logger
	mu        sync.Mutex
	key       *SigningKey
}

// NewGenerating creates a Manager that generates an ephemeral key lazily on
// first use. If algorithm is empty, DefaultAlgorithm (ES256) is used.
func NewGenerating(algorithm string, logger *slog.Logger) *GeneratingManager {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeneratingManager{algorithm: algorithm, logger: logger}
}

// SigningKey returns the signing key, generating one if needed.
func (m *GeneratingManager) SigningKey(_ context.Context) (*SigningKey, error) {
	key, err := m.ensureKey()
	if err != nil {
		return nil, err
	}
	keyCopy := *key
	return &keyCopy, nil
}

// SignJWT signs the claims, generating the key on first use
func (m *GeneratingManager) SignJWT(claims jwt.MapClaims) (string, error) {
	key, err := m.ensureKey()
	if err != nil {
		return "", err
	}

	method := jwt.GetSigningMethod(key.Algorithm)
	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = key.KeyID

	signed, err := token.SignedString(key.Key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// SignWithSecret signs the claims with a shared secret using an HMAC algorithm
func (m *GeneratingManager) SignWithSecret(claims jwt.MapClaims, secret []byte, alg string) (string, error) {
	method := jwt.GetSigningMethod(alg)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return "", fmt.Errorf("algorithm %s is not an HMAC algorithm", alg)
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// JWKS returns the public JWK Set, generating the key if needed
func (m *GeneratingManager) JWKS(ctx context.Context) (*jose.JSONWebKeySet, error) {
	key, err := m.ensureKey()
	if err != nil {
		return nil, err
	}
	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       key.Key.Public(),
			KeyID:     key.KeyID,
			Algorithm: key.Algorithm,
			Use:       "sig",
		}},
	}, nil
}

// ensureKey generates the ephemeral key once.
// Thread-safe: uses a mutex so only one key is ever generated.
func (m *GeneratingManager) ensureKey() (*SigningKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key != nil {
		return m.key, nil
	}

	privateKey, err := generatePrivateKey(m.algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	keyID, err := DeriveKeyID(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key ID: %w", err)
	}

	m.key = &SigningKey{
		KeyID:     keyID,
		Algorithm: m.algorithm,
		Key:       privateKey,
	}

	m.logger.Warn("generated ephemeral signing key - tokens will be invalid after restart",
		"algorithm", m.key.Algorithm,
		"key_id", m.key.KeyID,
	)

	return m.key, nil
}

// generatePrivateKey creates a new private key for the specified algorithm.
func generatePrivateKey(algorithm string) (crypto.Signer, error) {
	switch algorithm {
	case "ES256":
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "ES384":
		return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case "ES512":
		return ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	default:
		return nil, fmt.Errorf("unsupported algorithm for key generation: %s", algorithm)
	}
}

// Compile-time interface checks.
var (
	_ Manager = (*StaticManager)(nil)
	_ Manager = (*GeneratingManager)(nil)
)
