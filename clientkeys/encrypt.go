package clientkeys

import (
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// Encrypt wraps a signed JWT in a JWE compact envelope using the client's
// registered key management algorithm and content encryption. The cty header
// is set to JWT so recipients unwrap to the nested signed token.
func Encrypt(signedJWT string, alg, enc string, key any) (string, error) {
	opts := (&jose.EncrypterOptions{}).WithContentType("JWT").WithType("JWT")

	encrypter, err := jose.NewEncrypter(
		jose.ContentEncryption(enc),
		jose.Recipient{Algorithm: jose.KeyAlgorithm(alg), Key: key},
		opts,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create encrypter for alg=%s enc=%s: %w", alg, enc, err)
	}

	object, err := encrypter.Encrypt([]byte(signedJWT))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt token: %w", err)
	}

	serialized, err := object.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize encrypted token: %w", err)
	}

	return serialized, nil
}
