package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
)

// LoadSigningKey loads a PEM-encoded private key from a file.
// Supports RSA keys (PKCS1 and PKCS8) and ECDSA keys (SEC1 and PKCS8).
func LoadSigningKey(keyPath string) (crypto.Signer, error) {
	keyData, err := os.ReadFile(keyPath) //nolint:gosec // key path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from %s", keyPath)
	}

	return parsePrivateKey(block.Bytes)
}

// parsePrivateKey tries the known private key encodings in order.
func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
	switch key.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey:
		return signer, nil
	default:
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
}

// DeriveKeyID computes the RFC 7638 JWK thumbprint of the key's public half,
// base64url-encoded. Thumbprints are stable across restarts for the same key,
// so relying parties can cache the JWKS by kid.
func DeriveKeyID(key crypto.Signer) (string, error) {
	jwk := jose.JSONWebKey{Key: key.Public()}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

// DeriveAlgorithm picks the natural JWS algorithm for the key type:
// RS256 for RSA, and the ES family matched to the curve for ECDSA.
func DeriveAlgorithm(key crypto.Signer) (string, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return "RS256", nil
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			return "ES256", nil
		case elliptic.P384():
			return "ES384", nil
		case elliptic.P521():
			return "ES512", nil
		default:
			return "", fmt.Errorf("unsupported elliptic curve: %s", k.Curve.Params().Name)
		}
	default:
		return "", fmt.Errorf("unsupported key type %T", key)
	}
}

// ValidateAlgorithmForKey checks that the configured algorithm is usable with
// the key. ECDSA algorithms are bound to a specific curve; RSA keys accept any
// RS algorithm.
func ValidateAlgorithmForKey(alg string, key crypto.Signer) error {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		switch alg {
		case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512":
			return nil
		}
		return fmt.Errorf("algorithm %s is not valid for RSA keys", alg)
	case *ecdsa.PrivateKey:
		required, err := DeriveAlgorithm(key)
		if err != nil {
			return err
		}
		if alg != required {
			return fmt.Errorf("algorithm %s does not match curve %s (expected %s)",
				alg, k.Curve.Params().Name, required)
		}
		return nil
	default:
		return fmt.Errorf("unsupported key type %T", key)
	}
}

// DeriveSigningKeyParams fills in a SigningKey from the key material,
// deriving the key ID and algorithm when not supplied and validating the
// algorithm against the key type when it is.
func DeriveSigningKeyParams(key crypto.Signer, keyID, algorithm string) (*SigningKey, error) {
	if keyID == "" {
		derived, err := DeriveKeyID(key)
		if err != nil {
			return nil, err
		}
		keyID = derived
	}

	if algorithm == "" {
		derived, err := DeriveAlgorithm(key)
		if err != nil {
			return nil, err
		}
		algorithm = derived
	} else if err := ValidateAlgorithmForKey(algorithm, key); err != nil {
		return nil, err
	}

	return &SigningKey{
		KeyID:     keyID,
		Algorithm: algorithm,
		Key:       key,
	}, nil
}
