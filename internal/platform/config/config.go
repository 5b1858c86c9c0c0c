package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"fides/internal/vc"
)

// Server captures process level configuration for the trust engine.
type Server struct {
	Addr string
	// Host is the externally reachable base URL of this node, e.g.
	// "http://127.0.0.1:8084". All exchange audiences derive from it.
	Host string
	// Local switches on the loopback-to-container host substitution used
	// when wallets run in sibling containers during development.
	Local bool

	// DID is this node's own identity, used as `kid` on issued credentials.
	DID string
	// PrivateKeyPath / PublicKeyPath point at the PEM-encoded RSA key pair
	// backing credential issuance and the published JWKS.
	PrivateKeyPath string
	PublicKeyPath  string

	// RequestedVCTypes lists the credential types demanded from holders
	// during presentation exchanges.
	RequestedVCTypes []vc.Type
	// DataModel selects the W3C VC data model version for every claim path.
	DataModel *vc.DataModelVersion

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string
	AuditTopic   string

	HTTPTimeout time.Duration
}

// dockerInternalHost is the hostname sibling containers use to reach a
// service bound on the developer's loopback interface.
const dockerInternalHost = "host.docker.internal"

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:           getenv("FIDES_ADDR", ":8084"),
		Host:           getenv("FIDES_HOST", "http://127.0.0.1:8084"),
		Local:          os.Getenv("FIDES_LOCAL") == "true",
		DID:            os.Getenv("FIDES_DID"),
		PrivateKeyPath: os.Getenv("FIDES_PRIVATE_KEY"),
		PublicKeyPath:  os.Getenv("FIDES_PUBLIC_KEY"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		AuditTopic:     getenv("AUDIT_TOPIC", "fides.audit"),
		HTTPTimeout:    30 * time.Second,
	}

	if raw := os.Getenv("FIDES_HTTP_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.HTTPTimeout = d
		}
	}

	for _, name := range splitList(os.Getenv("FIDES_REQUESTED_VC_TYPES")) {
		t, err := vc.ParseType(name)
		if err != nil {
			return Server{}, fmt.Errorf("requested vc type %q: %w", name, err)
		}
		cfg.RequestedVCTypes = append(cfg.RequestedVCTypes, t)
	}

	if raw := os.Getenv("FIDES_W3C_DATA_MODEL"); raw != "" {
		version, err := vc.ParseDataModelVersion(raw)
		if err != nil {
			return Server{}, fmt.Errorf("w3c data model: %w", err)
		}
		cfg.DataModel = &version
	}

	return cfg, nil
}

// CanonicalizeHost rewrites loopback URLs to the inter-container hostname
// when running in local mode.
func (s Server) CanonicalizeHost(url string) string {
	return CanonicalizeURL(url, s.Local)
}

// CanonicalizeURL rewrites loopback URLs to the inter-container hostname
// when local is set. Wallets in sibling containers cannot reach 127.0.0.1,
// so every audience and metadata URL handed to them must carry the
// substituted host. Exact string replacement; wallet interop depends on it
// being reproducible.
func CanonicalizeURL(url string, local bool) string {
	if !local {
		return url
	}
	return strings.ReplaceAll(url, "127.0.0.1", dockerInternalHost)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
