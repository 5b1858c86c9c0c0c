package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fides/internal/verifier/models"
	"fides/internal/verifier/service"
	sessionstore "fides/internal/verifier/store/session"
	domainerrors "fides/pkg/domain-errors"
)

// VerifierService is the slice of the verifier the transport needs.
type VerifierService interface {
	Start(id string) (*models.Session, error)
	RequestURI(session *models.Session) string
	PresentationDefinition(session *models.Session) (service.PresentationDefinition, error)
	Verify(ctx context.Context, session *models.Session, vpToken string) error
}

// VerifierHandler serves the OIDC4VP endpoints.
type VerifierHandler struct {
	logger   *slog.Logger
	verifier VerifierService
	store    sessionstore.Store
}

func NewVerifierHandler(verifier VerifierService, store sessionstore.Store, logger *slog.Logger) *VerifierHandler {
	return &VerifierHandler{logger: logger, verifier: verifier, store: store}
}

func (h *VerifierHandler) Register(r chi.Router) {
	r.Route("/verifier", func(r chi.Router) {
		r.Post("/start", h.handleStart)
		r.Get("/pd/{state}", h.handlePresentationDefinition)
		r.Post("/verify/{state}", h.handleVerify)
	})
}

type startVerificationRequest struct {
	ID string `json:"id"`
}

type startVerificationResponse struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	RequestURI string `json:"request_uri"`
}

func (h *VerifierHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startVerificationRequest
	if r.Body != nil {
		// an empty body starts an exchange with a generated id
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	session, err := h.verifier.Start(req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.Create(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, startVerificationResponse{
		ID:         session.ID,
		State:      session.State,
		RequestURI: h.verifier.RequestURI(session),
	})
}

func (h *VerifierHandler) handlePresentationDefinition(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "state")

	session, err := h.store.GetByState(r.Context(), state)
	if err != nil {
		writeError(w, err)
		return
	}
	pd, err := h.verifier.PresentationDefinition(session)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pd)
}

// handleVerify receives the wallet's direct_post response.
func (h *VerifierHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "state")

	session, err := h.store.GetByState(r.Context(), state)
	if err != nil {
		writeError(w, err)
		return
	}

	vpToken := r.FormValue("vp_token")
	if vpToken == "" {
		writeError(w, domainerrors.New(domainerrors.CodeFormat, "request does not contain a vp_token"))
		return
	}

	if err := h.verifier.Verify(r.Context(), session, vpToken); err != nil {
		session.Status = models.StatusFailed
		if storeErr := h.store.Update(r.Context(), session); storeErr != nil {
			h.logger.Error("persist failed verification", "error", storeErr, "state", state)
		}
		writeError(w, err)
		return
	}

	if err := h.store.Update(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(session.Status)})
}
