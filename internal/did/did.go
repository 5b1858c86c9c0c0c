// Package did resolves decentralized identifiers to verification keys.
// Two methods are supported: did:jwk, which embeds the key in the
// identifier, and did:web, which points at a hosted DID document.
package did

import (
	"strings"
)

const (
	jwkPrefix = "did:jwk:"
	webPrefix = "did:web:"
)

// Method is the DID method of an identifier.
type Method int

const (
	MethodOther Method = iota
	MethodJWK
	MethodWeb
)

// SplitID separates a DID from its key id fragment. Splitting happens on
// the first '#'; hasFragment distinguishes an absent fragment from an
// empty one.
func SplitID(did string) (base, fragment string, hasFragment bool) {
	return strings.Cut(did, "#")
}

// ParseMethod classifies a DID by prefix. Anything that is not did:jwk or
// did:web is MethodOther.
func ParseMethod(did string) Method {
	switch {
	case strings.HasPrefix(did, jwkPrefix):
		return MethodJWK
	case strings.HasPrefix(did, webPrefix):
		return MethodWeb
	default:
		return MethodOther
	}
}

func (m Method) String() string {
	switch m {
	case MethodJWK:
		return "jwk"
	case MethodWeb:
		return "web"
	default:
		return "other"
	}
}

// DocumentURL turns the method specific id of a did:web (colon separated
// segments) into the URL of its DID document. A bare domain resolves to
// the well-known location; a domain with path segments resolves to
// did.json under that path.
func DocumentURL(domainPath string) string {
	segments := strings.Split(domainPath, ":")
	if len(segments) == 1 {
		return "https://" + segments[0] + "/.well-known/did.json"
	}
	return "https://" + segments[0] + "/" + strings.Join(segments[1:], "/") + "/did.json"
}
