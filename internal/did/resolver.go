package did

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"fides/internal/platform/metrics"
	"fides/internal/platform/tracer"
	domainerrors "fides/pkg/domain-errors"
)

// Resolver resolves DIDs to verification keys. It holds no cache; every
// resolution fetches fresh so key rotation by peers takes effect
// immediately.
type Resolver struct {
	fetcher Fetcher
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

// NewResolver builds a resolver on top of the injected fetch capability.
// The metrics argument may be nil.
func NewResolver(fetcher Fetcher, m *metrics.Metrics) *Resolver {
	return &Resolver{fetcher: fetcher, metrics: m, tracer: tracer.NewNoop()}
}

// NewResolverWithTracer builds a resolver that emits a span per
// resolution.
func NewResolverWithTracer(fetcher Fetcher, m *metrics.Metrics, t tracer.Tracer) *Resolver {
	r := NewResolver(fetcher, m)
	if t != nil {
		r.tracer = t
	}
	return r
}

// ResolveKey resolves a DID, possibly carrying a #fragment key id, to a
// verification key.
func (r *Resolver) ResolveKey(ctx context.Context, did string) (jwk.Key, error) {
	base, fragment, hasFragment := SplitID(did)
	method := ParseMethod(base)

	ctx, span := r.tracer.Start(ctx, tracer.SpanDIDResolve,
		tracer.String(tracer.AttrDIDMethod, method.String()),
		tracer.String(tracer.AttrDID, base),
	)
	key, err := r.resolve(ctx, method, base, fragment, hasFragment)
	span.End(err)
	r.observe(method, err)
	return key, err
}

func (r *Resolver) resolve(ctx context.Context, method Method, base, fragment string, hasFragment bool) (jwk.Key, error) {
	switch method {
	case MethodJWK:
		// the fragment of a did:jwk is ignored, the key is the identifier
		return keyFromJWKDID(base)
	case MethodWeb:
		if !hasFragment {
			return nil, domainerrors.New(domainerrors.CodeFormat, "did:web requires a key id fragment (#...)")
		}
		return r.keyFromWebDID(ctx, base, fragment)
	default:
		return nil, domainerrors.New(domainerrors.CodeNotImplemented, fmt.Sprintf("unsupported DID method: %s", base))
	}
}

func (r *Resolver) observe(method Method, err error) {
	if r.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.metrics.DIDResolutions.WithLabelValues(method.String(), outcome).Inc()
}

func keyFromJWKDID(base string) (jwk.Key, error) {
	encoded := strings.TrimPrefix(base, jwkPrefix)
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeFormat, "did:jwk is not valid base64url")
	}
	key, err := jwk.ParseKey(raw)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeFormat, "did:jwk does not contain a valid JWK")
	}
	return key, nil
}

// document is the subset of a DID document the resolver needs.
type document struct {
	VerificationMethod []verificationMethod `json:"verificationMethod"`
}

type verificationMethod struct {
	ID           string          `json:"id"`
	PublicKeyJwk json.RawMessage `json:"publicKeyJwk"`
}

func (r *Resolver) keyFromWebDID(ctx context.Context, base, kid string) (jwk.Key, error) {
	url := DocumentURL(strings.TrimPrefix(base, webPrefix))

	status, body, err := r.fetcher.Get(ctx, url)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodePetition, fmt.Sprintf("DID document not retrieved: %s", url))
	}
	if status != http.StatusOK {
		return nil, domainerrors.New(domainerrors.CodePetition, fmt.Sprintf("DID document not retrieved: %s returned %d", url, status))
	}

	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeFormat, fmt.Sprintf("DID document at %s is not valid JSON: %s", url, string(body)))
	}
	if len(doc.VerificationMethod) == 0 {
		return nil, domainerrors.New(domainerrors.CodeFormat, "missing verificationMethod")
	}

	fullKid := base + "#" + kid
	for _, vm := range doc.VerificationMethod {
		if vm.ID != fullKid {
			continue
		}
		if len(vm.PublicKeyJwk) == 0 {
			return nil, domainerrors.New(domainerrors.CodeFormat, "missing publicKeyJwk")
		}
		key, err := jwk.ParseKey(vm.PublicKeyJwk)
		if err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeFormat, "publicKeyJwk is not a valid JWK")
		}
		return key, nil
	}
	return nil, domainerrors.New(domainerrors.CodeMissingResource, fmt.Sprintf("key not found: %s", kid))
}
