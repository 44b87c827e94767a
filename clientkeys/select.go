package clientkeys

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// SignatureKey selects the client's public key for verifying a JWT assertion.
//
// If the assertion header carries a kid, that key is looked up directly and
// must be marked use=sig or carry no use attribute.
// Otherwise the first key marked use=sig (or with no use attribute) wins.
// Returns the exported raw public key (*rsa.PublicKey or *ecdsa.PublicKey)
// ready for golang-jwt verification.
func SignatureKey(set jwk.Set, kid string) (any, error) {
	if set == nil || set.Len() == 0 {
		return nil, fmt.Errorf("client JWKS contains no keys")
	}

	if kid != "" {
		key, found := set.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("key ID %s not found in client JWKS", kid)
		}
		// An enc-marked key must never verify an assertion
		if use := keyUse(key); use != "" && use != "sig" {
			return nil, fmt.Errorf("key ID %s is not a signature key (use=%s)", kid, use)
		}
		return exportPublicKey(key)
	}

	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if use := keyUse(key); use != "" && use != "sig" {
			continue
		}
		raw, err := exportPublicKey(key)
		if err != nil {
			continue
		}
		return raw, nil
	}

	return nil, fmt.Errorf("no signature key found in client JWKS")
}

// EncryptionKey selects the client's public key for encrypting responses to
// it. The first key marked use=enc wins; failing that, any RSA key is
// accepted since RSA keys without a use attribute are commonly dual-purpose.
func EncryptionKey(set jwk.Set) (any, error) {
	if set == nil || set.Len() == 0 {
		return nil, fmt.Errorf("client JWKS contains no keys")
	}

	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if keyUse(key) != "enc" {
			continue
		}
		raw, err := exportPublicKey(key)
		if err != nil {
			continue
		}
		return raw, nil
	}

	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if keyUse(key) == "sig" {
			continue
		}
		raw, err := exportPublicKey(key)
		if err != nil {
			continue
		}
		if _, isRSA := raw.(*rsa.PublicKey); isRSA {
			return raw, nil
		}
	}

	return nil, fmt.Errorf("no encryption key found in client JWKS")
}

// keyUse reads the use attribute, empty when unset.
func keyUse(key jwk.Key) string {
	var use string
	if err := key.Get(jwk.KeyUsageKey, &use); err != nil {
		return ""
	}
	return use
}

// exportPublicKey converts a JWK to its raw public key form.
// Private keys in a client JWKS (a registration mistake) are reduced to their
// public half rather than rejected.
func exportPublicKey(key jwk.Key) (any, error) {
	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("failed to export raw key: %w", err)
	}

	switch k := rawKey.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		return k, nil
	case *rsa.PrivateKey:
		return &k.PublicKey, nil
	case *ecdsa.PrivateKey:
		return &k.PublicKey, nil
	default:
		return nil, fmt.Errorf("unsupported key type %T in client JWKS", rawKey)
	}
}
