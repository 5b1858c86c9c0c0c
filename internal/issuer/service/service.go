// Package service implements the OIDC4VCI credential issuance flow.
package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"fides/internal/issuer/models"
	"fides/internal/keys"
	"fides/internal/platform/config"
	"fides/internal/platform/metrics"
	"fides/internal/platform/tracer"
	"fides/internal/token"
	"fides/internal/vc"
	domainerrors "fides/pkg/domain-errors"
	"fides/pkg/platform/audit"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks TokenValidator,ReplayGuard,AuditPublisher

// TokenValidator validates a signed token and returns its claims plus the
// signer's base DID.
type TokenValidator interface {
	Validate(ctx context.Context, raw, audience string) (map[string]any, string, error)
}

// ReplayGuard marks single-use secrets as consumed. FirstUse reports
// whether the value was unused until now.
type ReplayGuard interface {
	FirstUse(ctx context.Context, value string) (bool, error)
}

// AuditPublisher records exchange milestones.
type AuditPublisher interface {
	Publish(event audit.Event)
}

// Config carries the issuer's slice of the node configuration.
type Config struct {
	Host  string
	Local bool
	// DID is this node's identity; it becomes the kid on every issued
	// credential.
	DID string
	// Types is the catalogue advertised in the discovery metadata.
	Types []vc.Type
	// DataModel selects the claim layout of issued credentials.
	DataModel *vc.DataModelVersion
}

// Service drives credential issuance against sessions owned by the
// caller.
type Service struct {
	cfg     Config
	tokens  TokenValidator
	keys    *keys.Provider
	replay  ReplayGuard
	log     *slog.Logger
	metrics *metrics.Metrics
	audit   AuditPublisher
	tracer  tracer.Tracer
}

type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAudit(pub AuditPublisher) Option {
	return func(s *Service) { s.audit = pub }
}

// WithReplayGuard enables single-use enforcement for codes and bearer
// tokens.
func WithReplayGuard(guard ReplayGuard) Option {
	return func(s *Service) { s.replay = guard }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// New builds an issuer service.
func New(cfg Config, tokens TokenValidator, provider *keys.Provider, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		tokens: tokens,
		keys:   provider,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) issuerHost() string {
	return config.CanonicalizeURL(s.cfg.Host+"/issuer", s.cfg.Local)
}

// Start creates an issuance session bound to this issuer's audience.
func (s *Service) Start(id, name string, types []vc.Type) (*models.Session, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	vcType, err := json.Marshal(names)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeFormat, "serialize credential types")
	}

	session := models.NewSession(id, name, string(vcType), s.issuerHost())
	s.log.Info("issuance exchange started", "id", session.ID, "name", name)
	s.publish(audit.ActionIssuanceStarted, session.ID, "")
	return session, nil
}

// OfferURI builds the openid-credential-offer URI handed to the wallet.
func (s *Service) OfferURI(id string) string {
	host := s.issuerHost()
	semiHost := strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	offerURL := host + "/credentialOffer?id=" + id

	return fmt.Sprintf("openid-credential-offer://%s/?credential_offer_uri=%s",
		semiHost, url.QueryEscape(offerURL))
}

// Offer builds the credential offer document. In the two-phase flow the
// offer carries the tx code; the wallet only learns the pre-authorized
// code out of band.
func (s *Service) Offer(session *models.Session) (CredentialOffer, error) {
	types, err := s.sessionTypes(session)
	if err != nil {
		return CredentialOffer{}, err
	}
	ids := make([]string, len(types))
	for i, t := range types {
		ids[i] = t.ConfigurationID()
	}

	code := session.PreAuthCode
	if session.Step {
		code = session.TxCode
	}

	return CredentialOffer{
		CredentialIssuer:           s.issuerHost(),
		Grants:                     OfferGrants{PreAuthorizedCode: PreAuthorizedCodeGrant{PreAuthorizedCode: code}},
		CredentialConfigurationIDs: ids,
	}, nil
}

// Metadata returns the openid-credential-issuer discovery document.
func (s *Service) Metadata() IssuerMetadata {
	return newIssuerMetadata(s.issuerHost(), s.cfg.Types)
}

// AuthMetadata returns the oauth-authorization-server discovery document.
func (s *Service) AuthMetadata() AuthServerMetadata {
	return newAuthServerMetadata(s.issuerHost(), s.cfg.Types)
}

// TokenResponse returns the bearer token payload for a session that
// passed the token request checks.
func (s *Service) TokenResponse(session *models.Session) TokenResponse {
	return TokenResponse{AccessToken: session.Token, TokenType: "Bearer", ExpiresIn: 600}
}

// ValidateTokenRequest checks the pre-authorized code grant against the
// session. Comparisons are exact.
func (s *Service) ValidateTokenRequest(ctx context.Context, session *models.Session, request TokenRequest) error {
	if request.TxCode != "" && session.TxCode != request.TxCode {
		return domainerrors.New(domainerrors.CodeForbidden, "tx_code does not match")
	}
	if session.PreAuthCode != request.PreAuthorizedCode {
		return domainerrors.New(domainerrors.CodeForbidden, "pre_auth_code does not match")
	}
	if err := s.firstUse(ctx, session.PreAuthCode); err != nil {
		return err
	}
	return nil
}

// Issue signs the claims as a jwt_vc_json credential under this issuer's
// DID.
func (s *Service) Issue(claims map[string]any) (IssuedCredential, error) {
	tok := jwt.New()
	for name, value := range claims {
		if err := tok.Set(name, value); err != nil {
			return IssuedCredential{}, domainerrors.Wrap(err, domainerrors.CodeFormat, fmt.Sprintf("set claim %q", name))
		}
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.KeyIDKey, s.cfg.DID); err != nil {
		return IssuedCredential{}, domainerrors.Wrap(err, domainerrors.CodeFormat, "set credential kid")
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, s.keys.Private(), jws.WithProtectedHeaders(headers)))
	if err != nil {
		return IssuedCredential{}, domainerrors.Wrap(err, domainerrors.CodeFormat, "sign credential")
	}

	if s.metrics != nil {
		s.metrics.CredentialsIssued.WithLabelValues("jwt_vc_json").Inc()
	}
	return IssuedCredential{Format: "jwt_vc_json", Credential: string(signed)}, nil
}

// ValidateCredentialRequest checks the bearer token and the holder's
// proof of possession, then binds the holder and issuer DIDs to the
// session.
func (s *Service) ValidateCredentialRequest(ctx context.Context, session *models.Session, request CredentialRequest, bearer string) (err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanProofValidate, tracer.String(tracer.AttrExchangeID, session.ID))
	defer func() { span.End(err) }()

	if session.Token != bearer {
		return domainerrors.New(domainerrors.CodeForbidden, "token does not match")
	}
	if request.Format != "jwt_vc_json" {
		return domainerrors.New(domainerrors.CodeFormat, fmt.Sprintf("cannot issue a credential with format: %s", request.Format))
	}
	if request.Proof.ProofType != "jwt" {
		return domainerrors.New(domainerrors.CodeFormat, fmt.Sprintf("cannot validate proof with type: %s", request.Proof.ProofType))
	}

	claims, kid, err := s.tokens.Validate(ctx, request.Proof.JWT, session.Audience)
	if err != nil {
		return err
	}

	iss, err := vc.StringClaim(claims, "iss")
	if err != nil {
		return err
	}
	sub, err := vc.StringClaim(claims, "sub")
	if err != nil {
		return err
	}
	if iss != sub || sub != kid {
		return domainerrors.New(domainerrors.CodeForbidden, "invalid proof of DID possession")
	}

	iat, err := timeClaim(claims, "iat")
	if err != nil {
		return err
	}
	if err := token.Active(iat); err != nil {
		return err
	}
	exp, err := timeClaim(claims, "exp")
	if err != nil {
		return err
	}
	if err := token.NotExpired(exp); err != nil {
		return err
	}

	if err := s.firstUse(ctx, session.Token); err != nil {
		return err
	}

	session.HolderDID = kid
	session.IssuerDID = s.cfg.DID
	return nil
}

// CredentialClaims builds the claim set for the session's credential.
// Any stored credential data becomes the body; identity, type and
// validity fields are filled in around it according to the configured
// data model version.
func (s *Service) CredentialClaims(session *models.Session) (map[string]any, error) {
	if s.cfg.DataModel == nil {
		return nil, domainerrors.New(domainerrors.CodeModuleNotActive, "no W3C data model version configured")
	}
	if session.HolderDID == "" {
		return nil, domainerrors.New(domainerrors.CodeMissingResource, "session has no holder DID")
	}

	body := map[string]any{}
	if session.CredentialData != "" {
		if err := json.Unmarshal([]byte(session.CredentialData), &body); err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeFormat, "session credential data is not valid JSON")
		}
	}

	types, err := s.sessionTypes(session)
	if err != nil {
		return nil, err
	}
	typeNames := []any{"VerifiableCredential"}
	for _, t := range types {
		typeNames = append(typeNames, t.Name())
	}

	credentialID := "urn:uuid:" + session.CredentialID
	body[vc.FieldID] = credentialID
	body[vc.FieldType] = typeNames
	body[vc.FieldIssuer] = map[string]any{"id": s.cfg.DID}
	subject, _ := body[vc.FieldCredentialSubject].(map[string]any)
	if subject == nil {
		subject = map[string]any{}
	}
	subject["id"] = session.HolderDID
	body[vc.FieldCredentialSubject] = subject
	body[vc.FieldValidFrom] = time.Now().UTC().Format(time.RFC3339)

	claims := map[string]any{
		"iss": s.cfg.DID,
		"sub": session.HolderDID,
		"jti": credentialID,
	}
	if *s.cfg.DataModel == vc.V1 {
		claims["vc"] = body
		return claims, nil
	}
	for field, value := range body {
		claims[field] = value
	}
	return claims, nil
}

// IssueFor builds the claim set for the session and signs it, recording
// the credential on the session.
func (s *Service) IssueFor(session *models.Session) (IssuedCredential, error) {
	claims, err := s.CredentialClaims(session)
	if err != nil {
		return IssuedCredential{}, err
	}
	issued, err := s.Issue(claims)
	if err != nil {
		return IssuedCredential{}, err
	}
	session.Credential = issued.Credential
	s.publish(audit.ActionCredentialIssued, session.ID, session.HolderDID)
	return issued, nil
}

// Finalize produces the peer record for the credential recipient once
// delivery completes.
func (s *Service) Finalize(session *models.Session, slug, vcURI, interactionURI string) (models.PeerRecord, error) {
	if session.HolderDID == "" {
		return models.PeerRecord{}, domainerrors.New(domainerrors.CodeMissingResource, "session has no holder DID")
	}
	record := models.PeerRecord{
		ParticipantID:   session.HolderDID,
		ParticipantSlug: slug,
		VCURI:           vcURI,
		ParticipantType: "Minion",
		BaseURL:         baseURL(interactionURI),
		IsVCIssued:      false,
		IsMe:            false,
	}
	s.publish(audit.ActionIssuanceCompleted, session.ID, session.HolderDID)
	return record, nil
}

// JWKS exposes the issuer's RSA public key, modulus and exponent encoded
// as unpadded base64url over their big-endian bytes.
func (s *Service) JWKS() JWKS {
	pub := s.keys.Public()
	return JWKS{
		Kty: "RSA",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		Kid: "0",
	}
}

func (s *Service) sessionTypes(session *models.Session) ([]vc.Type, error) {
	var names []string
	if err := json.Unmarshal([]byte(session.VCType), &names); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeFormat, "session credential type list is not valid JSON")
	}
	types := make([]vc.Type, 0, len(names))
	for _, name := range names {
		t, err := vc.ParseType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func (s *Service) firstUse(ctx context.Context, value string) error {
	if s.replay == nil {
		return nil
	}
	first, err := s.replay.FirstUse(ctx, value)
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodePetition, "replay guard unavailable")
	}
	if !first {
		return domainerrors.New(domainerrors.CodeForbidden, "code already used")
	}
	return nil
}

func (s *Service) publish(action audit.Action, exchangeID, subject string) {
	if s.audit == nil {
		return
	}
	s.audit.Publish(audit.Event{Action: action, ExchangeID: exchangeID, SubjectDID: subject})
}

// baseURL trims a URL down to scheme and authority.
func baseURL(raw string) string {
	slashes := 0
	for i, r := range raw {
		if r != '/' {
			continue
		}
		slashes++
		if slashes == 3 {
			return raw[:i]
		}
	}
	return raw
}

func timeClaim(claims map[string]any, field string) (time.Time, error) {
	value, ok := claims[field]
	if !ok {
		return time.Time{}, domainerrors.New(domainerrors.CodeFormat, fmt.Sprintf("proof does not contain the '%s' field", field))
	}
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case float64:
		return time.Unix(int64(v), 0), nil
	case int64:
		return time.Unix(v, 0), nil
	default:
		return time.Time{}, domainerrors.New(domainerrors.CodeFormat, fmt.Sprintf("the '%s' field is not a timestamp", field))
	}
}
