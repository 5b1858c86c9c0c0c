package vc

import (
	"fmt"

	domainerrors "fides/pkg/domain-errors"
)

// Field names as they appear inside credential and presentation payloads.
// CredentialSubject is PascalCase on the wire in both data model versions.
const (
	FieldType                 = "type"
	FieldID                   = "id"
	FieldIssuer               = "issuer"
	FieldHolder               = "holder"
	FieldCredentialSubject    = "CredentialSubject"
	FieldVerifiableCredential = "verifiableCredential"
	FieldValidFrom            = "validFrom"
	FieldValidUntil           = "validUntil"
)

// Body returns the claim map holding the credential fields, descending
// into the `vc` claim for V1 tokens.
func Body(claims map[string]any, version DataModelVersion) (map[string]any, error) {
	if version != V1 {
		return claims, nil
	}
	nested, ok := claims["vc"].(map[string]any)
	if !ok {
		return nil, domainerrors.New(domainerrors.CodeFormat, "token does not contain the 'vc' field")
	}
	return nested, nil
}

// Claim fetches a required field from body. A missing field is a format
// error carrying the field name.
func Claim(body map[string]any, field string) (any, error) {
	value, ok := body[field]
	if !ok {
		return nil, domainerrors.New(domainerrors.CodeFormat, fmt.Sprintf("token does not contain the '%s' field", field))
	}
	return value, nil
}

// StringClaim fetches a required string field from body.
func StringClaim(body map[string]any, field string) (string, error) {
	value, err := Claim(body, field)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", domainerrors.New(domainerrors.CodeFormat, fmt.Sprintf("the '%s' field is not a string", field))
	}
	return s, nil
}

// OptionalStringClaim fetches a string field, returning ok=false when the
// field is absent. A present field of the wrong type is still an error.
func OptionalStringClaim(body map[string]any, field string) (string, bool, error) {
	value, ok := body[field]
	if !ok {
		return "", false, nil
	}
	s, ok := value.(string)
	if !ok {
		return "", false, domainerrors.New(domainerrors.CodeFormat, fmt.Sprintf("the '%s' field is not a string", field))
	}
	return s, true, nil
}

// MapClaim fetches a required object field from body.
func MapClaim(body map[string]any, field string) (map[string]any, error) {
	value, err := Claim(body, field)
	if err != nil {
		return nil, err
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, domainerrors.New(domainerrors.CodeFormat, fmt.Sprintf("the '%s' field is not an object", field))
	}
	return m, nil
}

// SliceClaim fetches a required array field from body.
func SliceClaim(body map[string]any, field string) ([]any, error) {
	value, err := Claim(body, field)
	if err != nil {
		return nil, err
	}
	s, ok := value.([]any)
	if !ok {
		return nil, domainerrors.New(domainerrors.CodeFormat, fmt.Sprintf("the '%s' field is not an array", field))
	}
	return s, nil
}

// IssuerID extracts the issuer identifier from a credential body. V2
// issuers are objects carrying an id; V1 accepts both the object form and
// a bare string.
func IssuerID(body map[string]any) (string, error) {
	value, err := Claim(body, FieldIssuer)
	if err != nil {
		return "", err
	}
	switch issuer := value.(type) {
	case string:
		return issuer, nil
	case map[string]any:
		return StringClaim(issuer, FieldID)
	default:
		return "", domainerrors.New(domainerrors.CodeFormat, "the 'issuer' field is neither a string nor an object")
	}
}
