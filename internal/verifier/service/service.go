// Package service implements the OIDC4VP presentation verification flow.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"fides/internal/platform/config"
	"fides/internal/platform/metrics"
	"fides/internal/platform/tracer"
	"fides/internal/vc"
	"fides/internal/verifier/models"
	domainerrors "fides/pkg/domain-errors"
	"fides/pkg/platform/audit"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks TokenValidator,Poster,AuditPublisher

// TokenValidator validates a signed token and returns its claims plus the
// signer's base DID.
type TokenValidator interface {
	Validate(ctx context.Context, raw, audience string) (map[string]any, string, error)
}

// Poster delivers the push variant of an interaction finish.
type Poster interface {
	Post(ctx context.Context, url string, payload []byte) (status int, body []byte, err error)
}

// AuditPublisher records exchange milestones.
type AuditPublisher interface {
	Publish(event audit.Event)
}

// Config carries the verifier's slice of the node configuration.
type Config struct {
	Host           string
	Local          bool
	RequestedTypes []vc.Type
	DataModel      *vc.DataModelVersion
}

// Service verifies presentations against sessions owned by the caller.
// It keeps no state of its own.
type Service struct {
	cfg     Config
	tokens  TokenValidator
	poster  Poster
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

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// New builds a verifier service.
func New(cfg Config, tokens TokenValidator, poster Poster, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		tokens: tokens,
		poster: poster,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates a new verification session for the exchange id. The
// session's audience is this verifier's client id.
func (s *Service) Start(id string) (*models.Session, error) {
	host := config.CanonicalizeURL(s.cfg.Host, s.cfg.Local)
	clientID := host + "/verify"

	if len(s.cfg.RequestedTypes) == 0 {
		return nil, domainerrors.New(domainerrors.CodeUnauthorized, "no credential types configured for verification")
	}

	names := make([]string, len(s.cfg.RequestedTypes))
	for i, t := range s.cfg.RequestedTypes {
		names[i] = t.String()
	}
	vcType, err := json.Marshal(names)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeFormat, "serialize requested credential types")
	}

	session := models.NewSession(id, clientID, string(vcType))
	s.log.Info("verification exchange started", "id", session.ID, "state", session.State)
	s.publish(audit.ActionVerificationStarted, session.ID, "")
	return session, nil
}

// RequestURI builds the openid4vp authorize URI handed to the wallet.
// Deterministic given the session and configuration.
func (s *Service) RequestURI(session *models.Session) string {
	base := config.CanonicalizeURL(s.cfg.Host, s.cfg.Local) + "/verifier"
	pdURI := base + "/pd/" + session.State
	responseURI := base + "/verify/" + session.State

	return fmt.Sprintf(
		"openid4vp://authorize?response_type=vp_token&client_id=%s&response_mode=direct_post&presentation_definition_uri=%s&client_id_scheme=redirect_uri&nonce=%s&response_uri=%s",
		url.QueryEscape(session.Audience),
		url.QueryEscape(pdURI),
		session.Nonce,
		url.QueryEscape(responseURI),
	)
}

// PresentationDefinition builds the definition served at pd/{state}.
func (s *Service) PresentationDefinition(session *models.Session) (PresentationDefinition, error) {
	if s.cfg.DataModel == nil {
		return PresentationDefinition{}, domainerrors.New(domainerrors.CodeModuleNotActive, "no W3C data model version configured")
	}

	var names []string
	if err := json.Unmarshal([]byte(session.VCType), &names); err != nil {
		return PresentationDefinition{}, domainerrors.Wrap(err, domainerrors.CodeFormat, "session credential type list is not valid JSON")
	}

	descriptors := make([]InputDescriptor, 0, len(names))
	for _, name := range names {
		t, err := vc.ParseType(name)
		if err != nil {
			return PresentationDefinition{}, err
		}
		descriptors = append(descriptors, newInputDescriptor(t, *s.cfg.DataModel))
	}

	return PresentationDefinition{ID: session.ID, InputDescriptors: descriptors}, nil
}

// Verify runs the full presentation check sequence against the session.
// Any failing check aborts the rest; the session's Holder and VPT may be
// partially set afterwards but Success stays unset. On success the
// session becomes Verified.
func (s *Service) Verify(ctx context.Context, session *models.Session, vpToken string) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanVPVerify, tracer.String(tracer.AttrExchangeID, session.ID))
	err := s.verify(ctx, session, vpToken)
	span.End(err)
	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.metrics.VPVerifications.WithLabelValues(outcome).Inc()
		s.metrics.ExchangeDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.publish(audit.ActionVerificationFailed, session.ID, err.Error())
		return err
	}
	s.publish(audit.ActionVerificationVerified, session.ID, session.Holder)
	return nil
}

func (s *Service) verify(ctx context.Context, session *models.Session, vpToken string) error {
	if s.cfg.DataModel == nil {
		return domainerrors.New(domainerrors.CodeModuleNotActive, "no W3C data model version configured")
	}
	version := *s.cfg.DataModel

	session.VPT = vpToken

	audience := config.CanonicalizeURL(s.cfg.Host, s.cfg.Local) + "/verifier/verify/" + session.State
	claims, kid, err := s.tokens.Validate(ctx, vpToken, audience)
	if err != nil {
		return err
	}

	nonce, err := vc.StringClaim(claims, "nonce")
	if err != nil {
		return err
	}
	if nonce != session.Nonce {
		return domainerrors.New(domainerrors.CodeSecurity, "invalid nonce, it does not match")
	}

	if err := checkOptionalEquals(claims, "sub", kid, "VPT subject and kid do not match"); err != nil {
		return err
	}
	if err := checkOptionalEquals(claims, "iss", kid, "VPT issuer and kid do not match"); err != nil {
		return err
	}
	session.Holder = kid

	vp, err := vc.MapClaim(claims, "vp")
	if err != nil {
		return err
	}
	vpID, err := vc.StringClaim(vp, vc.FieldID)
	if err != nil {
		return err
	}
	if vpID != session.ID {
		return domainerrors.New(domainerrors.CodeSecurity, "invalid exchange id, it does not match")
	}
	holder, err := vc.StringClaim(vp, vc.FieldHolder)
	if err != nil {
		return err
	}
	if holder != session.Holder {
		return domainerrors.New(domainerrors.CodeSecurity, "invalid holder, it does not match")
	}

	credentials, err := vc.SliceClaim(vp, vc.FieldVerifiableCredential)
	if err != nil {
		return domainerrors.New(domainerrors.CodeFormat, "VPT does not contain the 'verifiableCredential' field")
	}
	for _, entry := range credentials {
		raw, ok := entry.(string)
		if !ok {
			return domainerrors.New(domainerrors.CodeFormat, "the 'verifiableCredential' field contains a non-string entry")
		}
		if err := s.verifyCredential(ctx, raw, session.Holder, version); err != nil {
			return err
		}
	}

	success := true
	session.Success = &success
	session.Status = models.StatusVerified
	now := time.Now().UTC()
	session.EndedAt = &now

	s.log.Info("presentation verified", "id", session.ID, "holder", session.Holder)
	return nil
}

func (s *Service) verifyCredential(ctx context.Context, raw, holder string, version vc.DataModelVersion) error {
	claims, kid, err := s.tokens.Validate(ctx, raw, "")
	if err != nil {
		return err
	}
	body, err := vc.Body(claims, version)
	if err != nil {
		return err
	}

	issuerID, err := vc.IssuerID(body)
	if err != nil {
		return err
	}
	if issuerID != kid {
		return domainerrors.New(domainerrors.CodeSecurity, "VCT issuer and kid do not match")
	}
	if err := checkOptionalEquals(claims, "iss", kid, "VCT issuer and kid do not match"); err != nil {
		return err
	}

	id, err := vc.StringClaim(body, vc.FieldID)
	if err != nil {
		return err
	}
	if err := checkOptionalEquals(claims, "jti", id, "invalid credential id, it does not match"); err != nil {
		return err
	}

	subject, err := vc.MapClaim(body, vc.FieldCredentialSubject)
	if err != nil {
		return err
	}
	subjectID, err := vc.StringClaim(subject, vc.FieldID)
	if err != nil {
		return err
	}
	if subjectID != holder {
		return domainerrors.New(domainerrors.CodeSecurity, "VCT subject, credential subject and VP holder do not match")
	}
	if err := checkOptionalEquals(claims, "sub", holder, "VCT subject, credential subject and VP holder do not match"); err != nil {
		return err
	}

	if err := s.checkValidity(body); err != nil {
		return err
	}
	return nil
}

func (s *Service) checkValidity(body map[string]any) error {
	validFrom, present, err := vc.OptionalStringClaim(body, vc.FieldValidFrom)
	if err != nil {
		return err
	}
	if present {
		from, err := time.Parse(time.RFC3339, validFrom)
		if err != nil {
			return domainerrors.Wrap(err, domainerrors.CodeSecurity, "wrong format for field validFrom")
		}
		if from.After(time.Now()) {
			return domainerrors.New(domainerrors.CodeSecurity, "VC is not valid yet")
		}
	}

	validUntil, present, err := vc.OptionalStringClaim(body, vc.FieldValidUntil)
	if err != nil {
		return err
	}
	if present {
		until, err := time.Parse(time.RFC3339, validUntil)
		if err != nil {
			return domainerrors.Wrap(err, domainerrors.CodeSecurity, "wrong format for field validUntil")
		}
		if time.Now().After(until) {
			return domainerrors.New(domainerrors.CodeSecurity, "VC has expired")
		}
	}
	return nil
}

// Finish concludes the grant interaction the exchange belongs to, either
// by handing back a redirect URI or by pushing the finish payload to the
// client's callback.
func (s *Service) Finish(ctx context.Context, interaction models.Interaction) (string, error) {
	hash := interaction.Hash()

	switch interaction.Method {
	case "redirect":
		return fmt.Sprintf("%s?hash=%s&interact_ref=%s", interaction.URI, hash, interaction.InteractRef), nil
	case "push":
		payload, err := json.Marshal(map[string]string{
			"interact_ref": interaction.InteractRef,
			"hash":         hash,
		})
		if err != nil {
			return "", domainerrors.Wrap(err, domainerrors.CodeFormat, "serialize interaction finish payload")
		}
		status, _, err := s.poster.Post(ctx, interaction.URI, payload)
		if err != nil {
			return "", domainerrors.Wrap(err, domainerrors.CodePetition, "interaction finish push failed")
		}
		if status < 200 || status > 299 {
			return "", domainerrors.New(domainerrors.CodePetition, fmt.Sprintf("interaction finish push returned %d", status))
		}
		return "", nil
	default:
		return "", domainerrors.New(domainerrors.CodeNotImplemented, fmt.Sprintf("unsupported interaction finish method: %s", interaction.Method))
	}
}

func checkOptionalEquals(claims map[string]any, field, want, message string) error {
	value, present, err := vc.OptionalStringClaim(claims, field)
	if err != nil {
		return err
	}
	if present && value != want {
		return domainerrors.New(domainerrors.CodeSecurity, message)
	}
	return nil
}

func (s *Service) publish(action audit.Action, exchangeID, detail string) {
	if s.audit == nil {
		return
	}
	s.audit.Publish(audit.Event{Action: action, ExchangeID: exchangeID, Detail: detail})
}
