// Package httptransport is the thin HTTP layer. Handlers delegate to the
// domain services and never embed validation logic of their own.
package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fides/internal/platform/health"
	"fides/internal/platform/middleware"
	domainerrors "fides/pkg/domain-errors"
)

// NewRouter wires all public endpoints with the shared middleware stack.
func NewRouter(verifier *VerifierHandler, issuer *IssuerHandler, probes *health.Handler, registry *prometheus.Registry, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(60 * time.Second))

	verifier.Register(r)
	issuer.Register(r)
	probes.Register(r)

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError translates domain errors into HTTP responses. The error
// message is safe to expose; secrets never reach error values.
func writeError(w http.ResponseWriter, err error) {
	code := domainerrors.CodeInternal
	message := "internal error"

	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		code = domainErr.Code
		message = domainErr.Message
	}

	writeJSON(w, statusFor(code), map[string]string{
		"error":             string(code),
		"error_description": message,
	})
}

func statusFor(code domainerrors.Code) int {
	switch code {
	case domainerrors.CodeFormat, domainerrors.CodeBadRequest, domainerrors.CodeInvalidInput:
		return http.StatusBadRequest
	case domainerrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case domainerrors.CodeSecurity, domainerrors.CodeForbidden:
		return http.StatusForbidden
	case domainerrors.CodeMissingResource, domainerrors.CodeMissingAction, domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeConflict:
		return http.StatusConflict
	case domainerrors.CodeNotImplemented:
		return http.StatusNotImplemented
	case domainerrors.CodePetition:
		return http.StatusBadGateway
	case domainerrors.CodeModuleNotActive:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
