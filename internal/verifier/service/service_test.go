package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/mock/gomock"

	"fides/internal/vc"
	"fides/internal/verifier/models"
	domainerrors "fides/pkg/domain-errors"
)

const (
	holderDID = "did:web:holder.example.com"
	issuerDID = "did:web:issuer.example.com"
)

func (s *ServiceSuite) newSession() *models.Session {
	session, err := s.service.Start("exchange-1")
	s.Require().NoError(err)
	return session
}

func (s *ServiceSuite) vptClaims(session *models.Session) map[string]any {
	return map[string]any{
		"nonce": session.Nonce,
		"sub":   holderDID,
		"iss":   holderDID,
		"vp": map[string]any{
			"id":                   session.ID,
			"holder":               holderDID,
			"verifiableCredential": []any{"vc-jwt"},
		},
	}
}

func (s *ServiceSuite) vcClaims() map[string]any {
	return map[string]any{
		"iss": issuerDID,
		"sub": holderDID,
		"jti": "urn:uuid:cred-1",
		"vc": map[string]any{
			"id":                "urn:uuid:cred-1",
			"issuer":            map[string]any{"id": issuerDID},
			"CredentialSubject": map[string]any{"id": holderDID},
		},
	}
}

func (s *ServiceSuite) TestStart_NoRequestedTypes() {
	s.service.cfg.RequestedTypes = nil

	_, err := s.service.Start("exchange-1")
	s.True(domainerrors.HasCode(err, domainerrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestStart_TypeListRoundTrips() {
	session := s.newSession()

	s.Equal("http://127.0.0.1:8084/verify", session.Audience)
	s.Equal(models.StatusPending, session.Status)
	s.Len(session.State, 12)
	s.Len(session.Nonce, 12)

	var names []string
	s.Require().NoError(json.Unmarshal([]byte(session.VCType), &names))
	s.Equal([]string{"LegalPerson"}, names)
}

func (s *ServiceSuite) TestStart_LocalModeCanonicalizesHost() {
	s.service.cfg.Local = true

	session := s.newSession()
	s.Equal("http://host.docker.internal:8084/verify", session.Audience)
}

func (s *ServiceSuite) TestRequestURI() {
	session := s.newSession()

	uri := s.service.RequestURI(session)
	s.Contains(uri, "openid4vp://authorize?response_type=vp_token")
	s.Contains(uri, "client_id=http%3A%2F%2F127.0.0.1%3A8084%2Fverify")
	s.Contains(uri, "response_mode=direct_post")
	s.Contains(uri, "client_id_scheme=redirect_uri")
	s.Contains(uri, "nonce="+session.Nonce)
	s.Contains(uri, "pd%2F"+session.State)
	s.Contains(uri, "verify%2F"+session.State)
}

func (s *ServiceSuite) TestPresentationDefinition_V1() {
	session := s.newSession()

	pd, err := s.service.PresentationDefinition(session)
	s.Require().NoError(err)
	s.Equal(session.ID, pd.ID)
	s.Require().Len(pd.InputDescriptors, 1)
	s.Equal("LegalPerson", pd.InputDescriptors[0].ID)
	s.Equal([]string{"$.vc.type"}, pd.InputDescriptors[0].Constraints.Fields[0].Path)
	s.Equal("LegalPerson", pd.InputDescriptors[0].Constraints.Fields[0].Filter.Pattern)
}

func (s *ServiceSuite) TestPresentationDefinition_V2() {
	s.dataModel = vc.V2
	session := s.newSession()

	pd, err := s.service.PresentationDefinition(session)
	s.Require().NoError(err)
	s.Equal([]string{"$.type"}, pd.InputDescriptors[0].Constraints.Fields[0].Path)
}

func (s *ServiceSuite) TestPresentationDefinition_NoDataModel() {
	session := s.newSession()
	s.service.cfg.DataModel = nil

	_, err := s.service.PresentationDefinition(session)
	s.True(domainerrors.HasCode(err, domainerrors.CodeModuleNotActive))
}

func (s *ServiceSuite) TestVerify_HappyPath() {
	session := s.newSession()
	audience := "http://127.0.0.1:8084/verifier/verify/" + session.State

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vpt-jwt", audience).
		Return(s.vptClaims(session), holderDID, nil)
	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vc-jwt", "").
		Return(s.vcClaims(), issuerDID, nil)

	s.Require().NoError(s.service.Verify(context.Background(), session, "vpt-jwt"))

	s.Equal(models.StatusVerified, session.Status)
	s.Equal(holderDID, session.Holder)
	s.Equal("vpt-jwt", session.VPT)
	s.Require().NotNil(session.Success)
	s.True(*session.Success)
	s.NotNil(session.EndedAt)
}

func (s *ServiceSuite) TestVerify_NonceMismatch() {
	session := s.newSession()
	claims := s.vptClaims(session)
	claims["nonce"] = "tampered"

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(claims, holderDID, nil)

	err := s.service.Verify(context.Background(), session, "vpt-jwt")
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeSecurity))
	s.Contains(err.Error(), "nonce")
	s.Nil(session.Success)
}

func (s *ServiceSuite) TestVerify_SubjectKidMismatch() {
	session := s.newSession()
	claims := s.vptClaims(session)
	claims["sub"] = "did:web:someone-else.example.com"

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(claims, holderDID, nil)

	err := s.service.Verify(context.Background(), session, "vpt-jwt")
	s.True(domainerrors.HasCode(err, domainerrors.CodeSecurity))
}

func (s *ServiceSuite) TestVerify_HolderMismatch() {
	session := s.newSession()
	claims := s.vptClaims(session)
	claims["vp"].(map[string]any)["holder"] = "did:web:impostor.example.com"

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(claims, holderDID, nil)

	err := s.service.Verify(context.Background(), session, "vpt-jwt")
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeSecurity))
	s.Contains(err.Error(), "holder")
}

func (s *ServiceSuite) TestVerify_ExchangeIDMismatch() {
	session := s.newSession()
	claims := s.vptClaims(session)
	claims["vp"].(map[string]any)["id"] = "other-exchange"

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(claims, holderDID, nil)

	err := s.service.Verify(context.Background(), session, "vpt-jwt")
	s.True(domainerrors.HasCode(err, domainerrors.CodeSecurity))
}

func (s *ServiceSuite) TestVerify_MissingCredentials() {
	session := s.newSession()
	claims := s.vptClaims(session)
	delete(claims["vp"].(map[string]any), "verifiableCredential")

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(claims, holderDID, nil)

	err := s.service.Verify(context.Background(), session, "vpt-jwt")
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeFormat))
	s.Contains(err.Error(), "verifiableCredential")
}

func (s *ServiceSuite) TestVerify_CredentialIssuerMismatch() {
	session := s.newSession()
	vcClaims := s.vcClaims()
	vcClaims["vc"].(map[string]any)["issuer"] = map[string]any{"id": "did:web:forged.example.com"}

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vpt-jwt", gomock.Any()).
		Return(s.vptClaims(session), holderDID, nil)
	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vc-jwt", "").
		Return(vcClaims, issuerDID, nil)

	err := s.service.Verify(context.Background(), session, "vpt-jwt")
	s.True(domainerrors.HasCode(err, domainerrors.CodeSecurity))
}

func (s *ServiceSuite) TestVerify_CredentialSubjectMismatch() {
	session := s.newSession()
	vcClaims := s.vcClaims()
	vcClaims["vc"].(map[string]any)["CredentialSubject"] = map[string]any{"id": "did:web:other.example.com"}

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vpt-jwt", gomock.Any()).
		Return(s.vptClaims(session), holderDID, nil)
	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vc-jwt", "").
		Return(vcClaims, issuerDID, nil)

	err := s.service.Verify(context.Background(), session, "vpt-jwt")
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeSecurity))
	s.Contains(err.Error(), "credential subject")
}

func (s *ServiceSuite) TestVerify_CredentialNotYetValid() {
	session := s.newSession()
	vcClaims := s.vcClaims()
	vcClaims["vc"].(map[string]any)["validFrom"] = time.Now().Add(time.Hour).Format(time.RFC3339)

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vpt-jwt", gomock.Any()).
		Return(s.vptClaims(session), holderDID, nil)
	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vc-jwt", "").
		Return(vcClaims, issuerDID, nil)

	err := s.service.Verify(context.Background(), session, "vpt-jwt")
	s.Require().Error(err)
	s.Contains(err.Error(), "VC is not valid yet")
}

func (s *ServiceSuite) TestVerify_CredentialExpired() {
	session := s.newSession()
	vcClaims := s.vcClaims()
	vcClaims["vc"].(map[string]any)["validUntil"] = time.Now().Add(-time.Hour).Format(time.RFC3339)

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vpt-jwt", gomock.Any()).
		Return(s.vptClaims(session), holderDID, nil)
	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vc-jwt", "").
		Return(vcClaims, issuerDID, nil)

	err := s.service.Verify(context.Background(), session, "vpt-jwt")
	s.Require().Error(err)
	s.Contains(err.Error(), "VC has expired")
}

func (s *ServiceSuite) TestVerify_CredentialWithinValidity() {
	session := s.newSession()
	vcClaims := s.vcClaims()
	vcClaims["vc"].(map[string]any)["validFrom"] = time.Now().Add(-time.Hour).Format(time.RFC3339)
	vcClaims["vc"].(map[string]any)["validUntil"] = time.Now().Add(time.Hour).Format(time.RFC3339)

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vpt-jwt", gomock.Any()).
		Return(s.vptClaims(session), holderDID, nil)
	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vc-jwt", "").
		Return(vcClaims, issuerDID, nil)

	s.NoError(s.service.Verify(context.Background(), session, "vpt-jwt"))
}

func (s *ServiceSuite) TestVerify_V2CredentialLayout() {
	s.dataModel = vc.V2
	session := s.newSession()

	vcClaims := map[string]any{
		"iss":               issuerDID,
		"sub":               holderDID,
		"id":                "urn:uuid:cred-2",
		"issuer":            map[string]any{"id": issuerDID},
		"CredentialSubject": map[string]any{"id": holderDID},
	}

	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vpt-jwt", gomock.Any()).
		Return(s.vptClaims(session), holderDID, nil)
	s.mockTokens.EXPECT().
		Validate(gomock.Any(), "vc-jwt", "").
		Return(vcClaims, issuerDID, nil)

	s.NoError(s.service.Verify(context.Background(), session, "vpt-jwt"))
}

func (s *ServiceSuite) TestFinish_Redirect() {
	interaction := models.Interaction{
		Method:        "redirect",
		URI:           "https://client.example.com/cb",
		ClientNonce:   "client-nonce",
		ASNonce:       "as-nonce",
		InteractRef:   "ref-1",
		GrantEndpoint: "https://as.example.com/grant",
	}

	uri, err := s.service.Finish(context.Background(), interaction)
	s.Require().NoError(err)
	s.Equal(fmt.Sprintf("https://client.example.com/cb?hash=%s&interact_ref=ref-1", interaction.Hash()), uri)
}

func (s *ServiceSuite) TestFinish_Push() {
	interaction := models.Interaction{
		Method:      "push",
		URI:         "https://client.example.com/cb",
		InteractRef: "ref-1",
	}

	s.mockPoster.EXPECT().
		Post(gomock.Any(), "https://client.example.com/cb", gomock.Any()).
		Return(http.StatusOK, nil, nil)

	uri, err := s.service.Finish(context.Background(), interaction)
	s.Require().NoError(err)
	s.Empty(uri)
}

func (s *ServiceSuite) TestFinish_UnsupportedMethod() {
	_, err := s.service.Finish(context.Background(), models.Interaction{Method: "carrier-pigeon"})
	s.True(domainerrors.HasCode(err, domainerrors.CodeNotImplemented))
}
