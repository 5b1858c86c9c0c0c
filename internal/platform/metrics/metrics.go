package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus instruments for the credential exchange
// flows. Register once in main and pass down by pointer.
type Metrics struct {
	DIDResolutions    *prometheus.CounterVec
	TokenValidations  *prometheus.CounterVec
	VPVerifications   *prometheus.CounterVec
	CredentialsIssued *prometheus.CounterVec
	ExchangeDuration  *prometheus.HistogramVec
}

// New registers the instruments on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DIDResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fides_did_resolutions_total",
			Help: "DID document resolutions by method and outcome.",
		}, []string{"method", "outcome"}),
		TokenValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fides_token_validations_total",
			Help: "Signed token validations by outcome.",
		}, []string{"outcome"}),
		VPVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fides_vp_verifications_total",
			Help: "Verifiable presentation verifications by outcome.",
		}, []string{"outcome"}),
		CredentialsIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fides_credentials_issued_total",
			Help: "Credentials issued by type.",
		}, []string{"type"}),
		ExchangeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fides_exchange_duration_seconds",
			Help:    "Duration of exchange operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}
