package service

import (
	"context"
	"encoding/base64"
	"math/big"
	"time"

	"go.uber.org/mock/gomock"

	"fides/internal/issuer/models"
	"fides/internal/vc"
	domainerrors "fides/pkg/domain-errors"
)

const holderDID = "did:web:holder.example.com"

func (s *ServiceSuite) startSession() *models.Session {
	session, err := s.service.Start("exchange-1", "acme", []vc.Type{vc.TypeLegalPerson})
	s.Require().NoError(err)
	return session
}

func (s *ServiceSuite) TestStart() {
	session := s.startSession()

	s.Equal("http://127.0.0.1:8084/issuer", session.Audience)
	s.True(session.Step)
	s.NotEmpty(session.PreAuthCode)
	s.NotEmpty(session.TxCode)
	s.NotEmpty(session.Token)
	s.NotEqual(session.PreAuthCode, session.TxCode)
	s.NotEqual(session.PreAuthCode, session.Token)
	s.NotEmpty(session.CredentialID)
	s.JSONEq(`["LegalPerson"]`, session.VCType)
}

func (s *ServiceSuite) TestStart_LocalModeCanonicalizesAudience() {
	s.service.cfg.Local = true

	session := s.startSession()
	s.Equal("http://host.docker.internal:8084/issuer", session.Audience)
}

func (s *ServiceSuite) TestOfferURI() {
	uri := s.service.OfferURI("exchange-1")

	s.Equal(
		"openid-credential-offer://127.0.0.1:8084/issuer/?credential_offer_uri=http%3A%2F%2F127.0.0.1%3A8084%2Fissuer%2FcredentialOffer%3Fid%3Dexchange-1",
		uri,
	)
}

func (s *ServiceSuite) TestOffer_TwoPhaseCarriesTxCode() {
	session := s.startSession()

	offer, err := s.service.Offer(session)
	s.Require().NoError(err)
	s.Equal("http://127.0.0.1:8084/issuer", offer.CredentialIssuer)
	s.Equal(session.TxCode, offer.Grants.PreAuthorizedCode.PreAuthorizedCode)
	s.Equal([]string{"LegalPerson_jwt_vc_json"}, offer.CredentialConfigurationIDs)
}

func (s *ServiceSuite) TestOffer_OnePhaseCarriesPreAuthCode() {
	session := s.startSession()
	session.Step = false

	offer, err := s.service.Offer(session)
	s.Require().NoError(err)
	s.Equal(session.PreAuthCode, offer.Grants.PreAuthorizedCode.PreAuthorizedCode)
}

func (s *ServiceSuite) TestMetadata() {
	metadata := s.service.Metadata()

	s.Equal("http://127.0.0.1:8084/issuer", metadata.Issuer)
	s.Equal("http://127.0.0.1:8084/issuer/credential", metadata.CredentialEndpoint)
	s.Equal("http://127.0.0.1:8084/issuer/jwks", metadata.JwksURI)
	s.Equal([]string{"http://127.0.0.1:8084/issuer"}, metadata.AuthorizationServers)
	s.Contains(metadata.CredentialConfigurationsSupported, "LegalPerson_jwt_vc_json")
	s.Contains(metadata.CredentialConfigurationsSupported, "DataspaceParticipant_vc_json")

	configuration := metadata.CredentialConfigurationsSupported["LegalPerson_jwt_vc_json"]
	s.Equal("jwt_vc_json", configuration.Format)
	s.Equal([]string{"did"}, configuration.CryptographicBindingMethodsSupported)
	s.Equal([]string{"VerifiableCredential", "LegalPerson"}, configuration.CredentialDefinition.Type)
}

func (s *ServiceSuite) TestAuthMetadata() {
	metadata := s.service.AuthMetadata()

	s.Equal("http://127.0.0.1:8084/issuer/token", metadata.TokenEndpoint)
	s.Equal("http://127.0.0.1:8084/issuer/authorize", metadata.AuthorizationEndpoint)
	s.Equal("http://127.0.0.1:8084/issuer/par", metadata.PushedAuthorizationRequestEndpoint)
	s.Contains(metadata.GrantTypesSupported, "urn:ietf:params:oauth:grant-type:pre-authorized_code")
	s.Equal([]string{"openid"}, metadata.ScopesSupported)
	s.Equal([]string{"S256"}, metadata.CodeChallengeMethodsSupported)
}

func (s *ServiceSuite) TestTokenResponse() {
	session := s.startSession()

	response := s.service.TokenResponse(session)
	s.Equal(session.Token, response.AccessToken)
	s.Equal("Bearer", response.TokenType)
	s.Equal(600, response.ExpiresIn)
}

func (s *ServiceSuite) TestValidateTokenRequest() {
	session := s.startSession()

	err := s.service.ValidateTokenRequest(context.Background(), session, TokenRequest{
		PreAuthorizedCode: session.PreAuthCode,
		TxCode:            session.TxCode,
	})
	s.NoError(err)
}

func (s *ServiceSuite) TestValidateTokenRequest_TxCodeMismatch() {
	session := s.startSession()

	err := s.service.ValidateTokenRequest(context.Background(), session, TokenRequest{
		PreAuthorizedCode: session.PreAuthCode,
		TxCode:            "wrong",
	})
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeForbidden))
	s.Contains(err.Error(), "tx_code")
}

func (s *ServiceSuite) TestValidateTokenRequest_PreAuthCodeMismatch() {
	session := s.startSession()

	err := s.service.ValidateTokenRequest(context.Background(), session, TokenRequest{
		PreAuthorizedCode: "wrong",
	})
	s.True(domainerrors.HasCode(err, domainerrors.CodeForbidden))
}

func (s *ServiceSuite) TestValidateTokenRequest_ReplayedCode() {
	s.service.replay = s.mockReplay
	session := s.startSession()

	s.mockReplay.EXPECT().
		FirstUse(gomock.Any(), session.PreAuthCode).
		Return(false, nil)

	err := s.service.ValidateTokenRequest(context.Background(), session, TokenRequest{
		PreAuthorizedCode: session.PreAuthCode,
	})
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeForbidden))
	s.Contains(err.Error(), "already used")
}

func (s *ServiceSuite) TestValidateCredentialRequest_BearerMismatch() {
	session := s.startSession()

	err := s.service.ValidateCredentialRequest(context.Background(), session, CredentialRequest{}, "wrong-bearer")
	s.True(domainerrors.HasCode(err, domainerrors.CodeForbidden))
}

func (s *ServiceSuite) TestValidateCredentialRequest_WrongFormat() {
	session := s.startSession()

	request := CredentialRequest{Format: "ldp_vc"}
	err := s.service.ValidateCredentialRequest(context.Background(), session, request, session.Token)
	s.True(domainerrors.HasCode(err, domainerrors.CodeFormat))
}

func (s *ServiceSuite) TestValidateCredentialRequest_WrongProofType() {
	session := s.startSession()

	request := CredentialRequest{Format: "jwt_vc_json", Proof: Proof{ProofType: "cwt"}}
	err := s.service.ValidateCredentialRequest(context.Background(), session, request, session.Token)
	s.True(domainerrors.HasCode(err, domainerrors.CodeFormat))
}

func proofClaims(did string) map[string]any {
	return map[string]any{
		"iss": did,
		"sub": did,
		"iat": time.Now().Add(-time.Minute),
		"exp": time.Now().Add(10 * time.Minute),
	}
}

func (s *ServiceSuite) TestValidateCredentialRequest_HappyPath() {
	session := s.startSession()
	request := CredentialRequest{Format: "jwt_vc_json", Proof: Proof{ProofType: "jwt", JWT: "proof-jwt"}}

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "proof-jwt", session.Audience).
		Return(proofClaims(holderDID), holderDID, nil)

	err := s.service.ValidateCredentialRequest(context.Background(), session, request, session.Token)
	s.Require().NoError(err)
	s.Equal(holderDID, session.HolderDID)
	s.Equal("did:web:issuer.example.com", session.IssuerDID)
}

func (s *ServiceSuite) TestValidateCredentialRequest_ProofSubjectMismatch() {
	session := s.startSession()
	request := CredentialRequest{Format: "jwt_vc_json", Proof: Proof{ProofType: "jwt", JWT: "proof-jwt"}}

	claims := proofClaims(holderDID)
	claims["sub"] = "did:web:other.example.com"
	claims["iss"] = "did:web:other.example.com"

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "proof-jwt", session.Audience).
		Return(claims, holderDID, nil)

	err := s.service.ValidateCredentialRequest(context.Background(), session, request, session.Token)
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeForbidden))
	s.Contains(err.Error(), "possession")
}

func (s *ServiceSuite) TestValidateCredentialRequest_ProofNotYetValid() {
	session := s.startSession()
	request := CredentialRequest{Format: "jwt_vc_json", Proof: Proof{ProofType: "jwt", JWT: "proof-jwt"}}

	claims := proofClaims(holderDID)
	claims["iat"] = time.Now().Add(time.Hour)

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "proof-jwt", session.Audience).
		Return(claims, holderDID, nil)

	err := s.service.ValidateCredentialRequest(context.Background(), session, request, session.Token)
	s.True(domainerrors.HasCode(err, domainerrors.CodeForbidden))
}

func (s *ServiceSuite) TestValidateCredentialRequest_ProofExpired() {
	session := s.startSession()
	request := CredentialRequest{Format: "jwt_vc_json", Proof: Proof{ProofType: "jwt", JWT: "proof-jwt"}}

	claims := proofClaims(holderDID)
	claims["exp"] = time.Now().Add(-time.Hour)

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "proof-jwt", session.Audience).
		Return(claims, holderDID, nil)

	err := s.service.ValidateCredentialRequest(context.Background(), session, request, session.Token)
	s.True(domainerrors.HasCode(err, domainerrors.CodeForbidden))
}

func (s *ServiceSuite) TestCredentialClaims_V1() {
	session := s.startSession()
	session.HolderDID = holderDID
	session.CredentialData = `{"legalName":"ACME Corp"}`

	claims, err := s.service.CredentialClaims(session)
	s.Require().NoError(err)
	s.Equal("did:web:issuer.example.com", claims["iss"])
	s.Equal(holderDID, claims["sub"])
	s.Equal("urn:uuid:"+session.CredentialID, claims["jti"])

	body, ok := claims["vc"].(map[string]any)
	s.Require().True(ok)
	s.Equal("urn:uuid:"+session.CredentialID, body["id"])
	s.Equal([]any{"VerifiableCredential", "LegalPerson"}, body["type"])
	s.Equal(map[string]any{"id": "did:web:issuer.example.com"}, body["issuer"])
	s.Equal("ACME Corp", body["legalName"])

	subject, ok := body["CredentialSubject"].(map[string]any)
	s.Require().True(ok)
	s.Equal(holderDID, subject["id"])
	s.NotEmpty(body["validFrom"])
}

func (s *ServiceSuite) TestCredentialClaims_V2FlattensBody() {
	s.dataModel = vc.V2
	session := s.startSession()
	session.HolderDID = holderDID

	claims, err := s.service.CredentialClaims(session)
	s.Require().NoError(err)
	s.NotContains(claims, "vc")
	s.Equal("urn:uuid:"+session.CredentialID, claims["id"])
	s.Equal(map[string]any{"id": "did:web:issuer.example.com"}, claims["issuer"])
}

func (s *ServiceSuite) TestCredentialClaims_NoDataModel() {
	s.service.cfg.DataModel = nil
	session := s.startSession()
	session.HolderDID = holderDID

	_, err := s.service.CredentialClaims(session)
	s.True(domainerrors.HasCode(err, domainerrors.CodeModuleNotActive))
}

func (s *ServiceSuite) TestFinalize() {
	session := s.startSession()
	session.HolderDID = holderDID

	record, err := s.service.Finalize(session, "acme", "https://issuer.example.com/vc/1", "https://wallet.example.com/gnap/continue/abc")
	s.Require().NoError(err)
	s.Equal(holderDID, record.ParticipantID)
	s.Equal("acme", record.ParticipantSlug)
	s.Equal("Minion", record.ParticipantType)
	s.Equal("https://wallet.example.com", record.BaseURL)
	s.False(record.IsVCIssued)
	s.False(record.IsMe)
}

func (s *ServiceSuite) TestFinalize_NoHolder() {
	session := s.startSession()

	_, err := s.service.Finalize(session, "acme", "", "")
	s.True(domainerrors.HasCode(err, domainerrors.CodeMissingResource))
}

func (s *ServiceSuite) TestJWKS() {
	jwks := s.service.JWKS()

	s.Equal("RSA", jwks.Kty)
	s.Equal("0", jwks.Kid)

	n, err := base64.RawURLEncoding.DecodeString(jwks.N)
	s.Require().NoError(err)
	s.Equal(s.signingKey.PublicKey.N, new(big.Int).SetBytes(n))

	e, err := base64.RawURLEncoding.DecodeString(jwks.E)
	s.Require().NoError(err)
	s.Equal(int64(s.signingKey.PublicKey.E), new(big.Int).SetBytes(e).Int64())
}
