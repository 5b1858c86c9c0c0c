// Package vc carries the credential type catalogue and the W3C data model
// version handling shared by the verifier and issuer flows.
package vc

import (
	"fmt"
	"strings"

	domainerrors "fides/pkg/domain-errors"
)

// Type identifies a credential type this node can request or issue. The
// LegalRegistrationNumber variants carry a subtype suffix selecting which
// registration number the credential attests.
type Type string

const (
	TypeLRNTaxID   Type = "LegalRegistrationNumber-tax_id"
	TypeLRNEUID    Type = "LegalRegistrationNumber-euid"
	TypeLRNEORI    Type = "LegalRegistrationNumber-eori"
	TypeLRNVatID   Type = "LegalRegistrationNumber-vat_id"
	TypeLRNLeiCode Type = "LegalRegistrationNumber-lei_code"

	TypeDataspaceParticipant Type = "DataspaceParticipant"
	TypeLegalPerson          Type = "LegalPerson"
	TypeTermsAndConditions   Type = "TermsAndConditions"
)

var knownTypes = map[Type]bool{
	TypeLRNTaxID:             true,
	TypeLRNEUID:              true,
	TypeLRNEORI:              true,
	TypeLRNVatID:             true,
	TypeLRNLeiCode:           true,
	TypeDataspaceParticipant: true,
	TypeLegalPerson:          true,
	TypeTermsAndConditions:   true,
}

// ParseType maps a wire string onto a known credential type.
func ParseType(raw string) (Type, error) {
	t := Type(raw)
	if !knownTypes[t] {
		return "", domainerrors.New(domainerrors.CodeFormat, fmt.Sprintf("unknown credential type: %s", raw))
	}
	return t, nil
}

// Name returns the bare credential type name, without any subtype suffix.
// This is the value that appears in the `type` array of the credential.
func (t Type) Name() string {
	name, _, _ := strings.Cut(string(t), "-")
	return name
}

// Subtype returns the registration number subtype, or "" for types that
// have none.
func (t Type) Subtype() string {
	_, subtype, _ := strings.Cut(string(t), "-")
	return subtype
}

// ConfigurationID returns the credential configuration id advertised in
// the issuer metadata for this type.
func (t Type) ConfigurationID() string {
	if t == TypeDataspaceParticipant {
		return t.Name() + "_vc_json"
	}
	return t.Name() + "_jwt_vc_json"
}

// String implements fmt.Stringer.
func (t Type) String() string { return string(t) }

// DataModelVersion selects between the two W3C Verifiable Credentials data
// model layouts. V1 tokens nest the credential under a `vc` claim; V2
// tokens carry the credential fields at the top level of the payload.
type DataModelVersion int

const (
	V1 DataModelVersion = iota + 1
	V2
)

// ParseDataModelVersion accepts "v1" or "v2", case insensitive.
func ParseDataModelVersion(raw string) (DataModelVersion, error) {
	switch strings.ToLower(raw) {
	case "v1":
		return V1, nil
	case "v2":
		return V2, nil
	default:
		return 0, domainerrors.New(domainerrors.CodeFormat, fmt.Sprintf("unknown data model version: %s", raw))
	}
}

func (v DataModelVersion) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return fmt.Sprintf("DataModelVersion(%d)", int(v))
	}
}

// ClaimPath returns the JSONPath to a credential field for the given data
// model version, for use in presentation definition constraints.
func ClaimPath(field string, version DataModelVersion) string {
	if version == V1 {
		return "$.vc." + field
	}
	return "$." + field
}
