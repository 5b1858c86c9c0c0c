package service

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"fides/internal/did"
	"fides/internal/token"
)

// didJWK encodes the suite's public key as a did:jwk identifier so issued
// credentials can be verified without any network fetch.
func (s *ServiceSuite) didJWK() string {
	key, err := jwk.FromRaw(&s.signingKey.PublicKey)
	s.Require().NoError(err)
	raw, err := json.Marshal(key)
	s.Require().NoError(err)
	return "did:jwk:" + base64.RawURLEncoding.EncodeToString(raw)
}

func (s *ServiceSuite) TestIssue_ValidateRoundTripV1() {
	issuerDID := s.didJWK()
	s.service.cfg.DID = issuerDID

	claims := map[string]any{
		"vc": map[string]any{
			"id":                "urn:uuid:cred-1",
			"issuer":            map[string]any{"id": issuerDID},
			"CredentialSubject": map[string]any{"id": holderDID, "legalName": "ACME Corp"},
		},
	}

	issued, err := s.service.Issue(claims)
	s.Require().NoError(err)
	s.Equal("jwt_vc_json", issued.Format)

	validator := token.NewValidator(did.NewResolver(nil, nil), nil)
	got, signer, err := validator.Validate(context.Background(), issued.Credential, "")
	s.Require().NoError(err)
	s.Equal(issuerDID, signer)
	s.Equal(claims["vc"], got["vc"])
}

func (s *ServiceSuite) TestIssue_ValidateRoundTripV2() {
	issuerDID := s.didJWK()
	s.service.cfg.DID = issuerDID

	claims := map[string]any{
		"id":                "urn:uuid:cred-2",
		"issuer":            map[string]any{"id": issuerDID},
		"CredentialSubject": map[string]any{"id": holderDID},
		"validFrom":         "2024-01-01T00:00:00Z",
	}

	issued, err := s.service.Issue(claims)
	s.Require().NoError(err)

	validator := token.NewValidator(did.NewResolver(nil, nil), nil)
	got, signer, err := validator.Validate(context.Background(), issued.Credential, "")
	s.Require().NoError(err)
	s.Equal(issuerDID, signer)
	s.Equal(claims["id"], got["id"])
	s.Equal(claims["issuer"], got["issuer"])
	s.Equal(claims["CredentialSubject"], got["CredentialSubject"])
	s.Equal(claims["validFrom"], got["validFrom"])
}
