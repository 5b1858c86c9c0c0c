package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fides/internal/issuer/models"
	"fides/internal/issuer/service"
	sessionstore "fides/internal/issuer/store/session"
	"fides/internal/vc"
	domainerrors "fides/pkg/domain-errors"
)

const preAuthorizedGrantType = "urn:ietf:params:oauth:grant-type:pre-authorized_code"

// IssuerService is the slice of the issuer the transport needs.
type IssuerService interface {
	Start(id, name string, types []vc.Type) (*models.Session, error)
	OfferURI(id string) string
	Offer(session *models.Session) (service.CredentialOffer, error)
	Metadata() service.IssuerMetadata
	AuthMetadata() service.AuthServerMetadata
	ValidateTokenRequest(ctx context.Context, session *models.Session, request service.TokenRequest) error
	TokenResponse(session *models.Session) service.TokenResponse
	ValidateCredentialRequest(ctx context.Context, session *models.Session, request service.CredentialRequest, bearer string) error
	IssueFor(session *models.Session) (service.IssuedCredential, error)
	Finalize(session *models.Session, slug, vcURI, interactionURI string) (models.PeerRecord, error)
	JWKS() service.JWKS
}

// IssuerHandler serves the OIDC4VCI endpoints.
type IssuerHandler struct {
	logger *slog.Logger
	issuer IssuerService
	store  sessionstore.Store
}

func NewIssuerHandler(issuer IssuerService, store sessionstore.Store, logger *slog.Logger) *IssuerHandler {
	return &IssuerHandler{logger: logger, issuer: issuer, store: store}
}

func (h *IssuerHandler) Register(r chi.Router) {
	r.Route("/issuer", func(r chi.Router) {
		r.Post("/start", h.handleStart)
		r.Get("/credentialOffer", h.handleCredentialOffer)
		r.Get("/.well-known/openid-credential-issuer", h.handleMetadata)
		r.Get("/.well-known/oauth-authorization-server", h.handleAuthMetadata)
		r.Post("/token", h.handleToken)
		r.Post("/credential", h.handleCredential)
		r.Post("/finalize/{id}", h.handleFinalize)
		r.Get("/jwks", h.handleJWKS)
	})
}

type startIssuanceRequest struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	VCTypes        []string `json:"vc_types"`
	CredentialData string   `json:"credential_data,omitempty"`
	// TwoPhase selects whether the offer carries the tx code. Defaults to
	// the two-phase flow.
	TwoPhase *bool `json:"two_phase,omitempty"`
}

type startIssuanceResponse struct {
	ID          string `json:"id"`
	URI         string `json:"uri"`
	PreAuthCode string `json:"pre_auth_code"`
	TxCode      string `json:"tx_code,omitempty"`
}

func (h *IssuerHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startIssuanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.Wrap(err, domainerrors.CodeFormat, "decode issuance start request"))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	types := make([]vc.Type, 0, len(req.VCTypes))
	for _, name := range req.VCTypes {
		t, err := vc.ParseType(name)
		if err != nil {
			writeError(w, err)
			return
		}
		types = append(types, t)
	}

	session, err := h.issuer.Start(req.ID, req.Name, types)
	if err != nil {
		writeError(w, err)
		return
	}
	session.URI = h.issuer.OfferURI(session.ID)
	session.CredentialData = req.CredentialData
	if req.TwoPhase != nil {
		session.Step = *req.TwoPhase
	}

	if err := h.store.Create(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}

	resp := startIssuanceResponse{ID: session.ID, URI: session.URI, PreAuthCode: session.PreAuthCode}
	if session.Step {
		resp.TxCode = session.TxCode
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *IssuerHandler) handleCredentialOffer(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, domainerrors.New(domainerrors.CodeFormat, "request does not contain an exchange id"))
		return
	}

	session, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	offer, err := h.issuer.Offer(session)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (h *IssuerHandler) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.issuer.Metadata())
}

func (h *IssuerHandler) handleAuthMetadata(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.issuer.AuthMetadata())
}

func (h *IssuerHandler) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, domainerrors.Wrap(err, domainerrors.CodeFormat, "decode token request"))
		return
	}
	request := service.TokenRequest{
		GrantType:         r.PostFormValue("grant_type"),
		PreAuthorizedCode: r.PostFormValue("pre-authorized_code"),
		TxCode:            r.PostFormValue("tx_code"),
	}
	if request.GrantType != preAuthorizedGrantType {
		writeError(w, domainerrors.New(domainerrors.CodeFormat, "unsupported grant_type: "+request.GrantType))
		return
	}

	session, err := h.store.GetByCode(r.Context(), request.PreAuthorizedCode)
	if err != nil {
		if domainerrors.HasCode(err, domainerrors.CodeMissingResource) {
			err = domainerrors.New(domainerrors.CodeForbidden, "pre_auth_code does not match")
		}
		writeError(w, err)
		return
	}

	if err := h.issuer.ValidateTokenRequest(r.Context(), session, request); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.issuer.TokenResponse(session))
}

func (h *IssuerHandler) handleCredential(w http.ResponseWriter, r *http.Request) {
	bearer, ok := bearerToken(r)
	if !ok {
		writeError(w, domainerrors.New(domainerrors.CodeUnauthorized, "missing bearer token"))
		return
	}

	var request service.CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, domainerrors.Wrap(err, domainerrors.CodeFormat, "decode credential request"))
		return
	}

	session, err := h.store.GetByToken(r.Context(), bearer)
	if err != nil {
		if domainerrors.HasCode(err, domainerrors.CodeMissingResource) {
			err = domainerrors.New(domainerrors.CodeForbidden, "token does not match")
		}
		writeError(w, err)
		return
	}

	if err := h.issuer.ValidateCredentialRequest(r.Context(), session, request, bearer); err != nil {
		writeError(w, err)
		return
	}

	issued, err := h.issuer.IssueFor(session)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.Update(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issued)
}

type finalizeRequest struct {
	Slug           string `json:"slug"`
	VCURI          string `json:"vc_uri"`
	InteractionURI string `json:"interaction_uri"`
}

func (h *IssuerHandler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.Wrap(err, domainerrors.CodeFormat, "decode finalize request"))
		return
	}

	session, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	record, err := h.issuer.Finalize(session, req.Slug, req.VCURI, req.InteractionURI)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *IssuerHandler) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"keys": []service.JWKS{h.issuer.JWKS()}})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
