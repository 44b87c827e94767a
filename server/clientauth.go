package server

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	oidc "github.com/giantswarm/oidc-core"
	"github.com/giantswarm/oidc-core/clientkeys"
	"github.com/giantswarm/oidc-core/storage"
)

// JWS algorithm families accepted for client assertions. The split prevents
// algorithm confusion: an HMAC assertion must never verify against a public
// key and vice versa.
var (
	hmacAlgorithms      = []string{"HS256", "HS384", "HS512"}
	publicKeyAlgorithms = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512"}
)

// authenticateClient validates the credentials presented at the token
// endpoint against the client's configured authentication method.
// All failures map to invalid_client.
func (s *Server) authenticateClient(ctx context.Context, client *storage.Client, req *TokenRequest) error {
	method := client.TokenEndpointAuthMethod

	// A client registered without a method and without a secret is public
	if method == "" {
		if client.Secret == "" && client.SecretHash == "" {
			return nil
		}
		method = oidc.AuthMethodClientSecretBasic
	}

	var err error
	switch method {
	case oidc.AuthMethodNone:
		return nil

	case oidc.AuthMethodClientSecretBasic, oidc.AuthMethodClientSecretPost:
		err = s.validateClientSecret(client, req.ClientSecret)

	case oidc.AuthMethodClientSecretJWT:
		err = s.verifyClientAssertion(ctx, client, req, true)

	case oidc.AuthMethodPrivateKeyJWT:
		err = s.verifyClientAssertion(ctx, client, req, false)

	default:
		err = fmt.Errorf("unknown token endpoint auth method: %s", method)
	}

	if err != nil {
		s.Logger.Debug("Client authentication failed",
			"client_id", client.ID,
			"auth_method", method,
			"reason", err.Error())

		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(client.ID, "client_authentication_failed")
		}
		s.metrics.RecordClientAuthFailure(ctx, method)
		return oidc.ErrInvalidClient("client authentication failed")
	}

	return nil
}

// validateClientSecret compares a presented secret against the client's
// stored credential: bcrypt when only the hash is stored (dynamically
// registered clients), constant-time equality against the raw secret
// otherwise.
func (s *Server) validateClientSecret(client *storage.Client, presented string) error {
	if presented == "" {
		return fmt.Errorf("client secret is required")
	}

	if client.SecretHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(presented)); err != nil {
			return fmt.Errorf("client secret mismatch")
		}
		return nil
	}

	if client.Secret == "" {
		return fmt.Errorf("client has no secret configured")
	}
	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(presented)) != 1 {
		return fmt.Errorf("client secret mismatch")
	}
	return nil
}

// verifyClientAssertion verifies a client-assertion JWT (RFC 7523).
// For client_secret_jwt the HMAC key is the client's raw secret; for
// private_key_jwt the key comes from the client's published JWKS, selected
// by the assertion's kid and sig usage.
func (s *Server) verifyClientAssertion(ctx context.Context, client *storage.Client, req *TokenRequest, hmacBased bool) error {
	if req.ClientAssertion == "" {
		return fmt.Errorf("client_assertion is required")
	}
	if req.ClientAssertionType != oidc.ClientAssertionTypeJWTBearer {
		return fmt.Errorf("client_assertion_type must be %s", oidc.ClientAssertionTypeJWTBearer)
	}

	var (
		keyfunc jwt.Keyfunc
		algs    []string
	)

	if hmacBased {
		if client.Secret == "" {
			return fmt.Errorf("client has no secret to derive an HMAC key from")
		}
		algs = hmacAlgorithms
		keyfunc = func(_ *jwt.Token) (any, error) {
			return []byte(client.Secret), nil
		}
	} else {
		source := client.JWKSURI
		if source == "" {
			source = client.JWKS
		}
		if source == "" {
			return fmt.Errorf("client has no registered JWKS")
		}
		algs = publicKeyAlgorithms
		keyfunc = func(token *jwt.Token) (any, error) {
			set, err := s.clientKeys.Get(ctx, source)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve client JWKS: %w", err)
			}
			kid, _ := token.Header["kid"].(string)
			return clientkeys.SignatureKey(set, kid)
		}
	}

	token, err := jwt.Parse(req.ClientAssertion, keyfunc,
		jwt.WithValidMethods(algs),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("assertion verification failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("assertion carries no claims")
	}

	issuer, err := claims.GetIssuer()
	if err != nil || issuer != client.ID {
		return fmt.Errorf("assertion issuer must be the client_id")
	}
	subject, err := claims.GetSubject()
	if err != nil || subject != client.ID {
		return fmt.Errorf("assertion subject must be the client_id")
	}

	audiences, err := claims.GetAudience()
	if err != nil {
		return fmt.Errorf("assertion audience is missing")
	}
	for _, aud := range audiences {
		if aud == s.Config.Issuer {
			return nil
		}
	}
	return fmt.Errorf("assertion audience must be the provider issuer")
}
