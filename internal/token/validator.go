// Package token validates signed JWTs whose signing key is discovered
// through DID resolution of the token's kid header.
package token

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"fides/internal/did"
	"fides/internal/platform/metrics"
	domainerrors "fides/pkg/domain-errors"
)

// Resolver resolves a DID (the token's kid) to a verification key.
type Resolver interface {
	ResolveKey(ctx context.Context, did string) (jwk.Key, error)
}

// Validator verifies token signatures and structural claims. Expiry is
// deliberately not checked here: the verifier checks validFrom/validUntil
// on credentials and the issuer checks iat/exp on possession proofs, each
// with its own error semantics. Every caller owns its temporal check.
type Validator struct {
	resolver Resolver
	metrics  *metrics.Metrics
}

// NewValidator builds a validator. The metrics argument may be nil.
func NewValidator(resolver Resolver, m *metrics.Metrics) *Validator {
	return &Validator{resolver: resolver, metrics: m}
}

// Validate checks raw's signature against the key resolved from its kid
// header and returns the claim set plus the signer's base DID (the kid
// with any #fragment stripped). When audience is non-empty the token's
// aud claim must contain exactly that string.
func (v *Validator) Validate(ctx context.Context, raw, audience string) (map[string]any, string, error) {
	claims, signer, err := v.validate(ctx, raw, audience)
	if v.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		v.metrics.TokenValidations.WithLabelValues(outcome).Inc()
	}
	return claims, signer, err
}

func (v *Validator) validate(ctx context.Context, raw, audience string) (map[string]any, string, error) {
	msg, err := jws.ParseString(raw)
	if err != nil {
		return nil, "", domainerrors.Wrap(err, domainerrors.CodeFormat, "token is not a valid JWS")
	}
	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return nil, "", domainerrors.New(domainerrors.CodeFormat, "token carries no signature")
	}
	headers := sigs[0].ProtectedHeaders()
	kid := headers.KeyID()
	if kid == "" {
		return nil, "", domainerrors.New(domainerrors.CodeFormat, "token header does not contain a kid")
	}
	alg := headers.Algorithm()
	if alg == "" {
		return nil, "", domainerrors.New(domainerrors.CodeFormat, "token header does not declare a signature algorithm")
	}

	key, err := v.resolver.ResolveKey(ctx, kid)
	if err != nil {
		return nil, "", err
	}

	// The declared algorithm comes from attacker controlled input. Accept
	// it only when it matches the resolved key's own type, otherwise an
	// RSA public key could be abused as an HMAC secret.
	if !algorithmMatchesKey(alg, key) {
		return nil, "", domainerrors.New(domainerrors.CodeSecurity,
			fmt.Sprintf("token algorithm %s does not match key type %s", alg, key.KeyType()))
	}

	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(alg, key), jwt.WithValidate(false))
	if err != nil {
		return nil, "", domainerrors.Wrap(err, domainerrors.CodeSecurity, "token signature is incorrect")
	}

	if nbf := tok.NotBefore(); !nbf.IsZero() && time.Now().Before(nbf) {
		return nil, "", domainerrors.New(domainerrors.CodeSecurity, "token is not valid yet")
	}
	if audience != "" && !containsExactly(tok.Audience(), audience) {
		return nil, "", domainerrors.New(domainerrors.CodeSecurity, "token audience does not match")
	}

	claims, err := tok.AsMap(ctx)
	if err != nil {
		return nil, "", domainerrors.Wrap(err, domainerrors.CodeFormat, "token claims cannot be decoded")
	}

	base, _, _ := did.SplitID(kid)
	return claims, base, nil
}

func algorithmMatchesKey(alg jwa.SignatureAlgorithm, key jwk.Key) bool {
	name := alg.String()
	switch key.KeyType() {
	case jwa.RSA:
		return strings.HasPrefix(name, "RS") || strings.HasPrefix(name, "PS")
	case jwa.EC:
		return strings.HasPrefix(name, "ES")
	case jwa.OKP:
		return alg == jwa.EdDSA
	default:
		return false
	}
}

func containsExactly(audiences []string, want string) bool {
	for _, aud := range audiences {
		if aud == want {
			return true
		}
	}
	return false
}

// Active verifies that a token's iat is not in the future.
func Active(iat time.Time) error {
	if time.Now().Before(iat) {
		return domainerrors.New(domainerrors.CodeForbidden, "token is not yet valid")
	}
	return nil
}

// NotExpired verifies that a token's exp is not in the past.
func NotExpired(exp time.Time) error {
	if time.Now().After(exp) {
		return domainerrors.New(domainerrors.CodeForbidden, "token has expired")
	}
	return nil
}
