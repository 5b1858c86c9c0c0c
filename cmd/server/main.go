package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"fides/internal/did"
	"fides/internal/issuer/replay"
	issuerservice "fides/internal/issuer/service"
	issuersession "fides/internal/issuer/store/session"
	"fides/internal/keys"
	"fides/internal/platform/config"
	"fides/internal/platform/database"
	"fides/internal/platform/health"
	"fides/internal/platform/httpserver"
	"fides/internal/platform/kafka/producer"
	"fides/internal/platform/logger"
	"fides/internal/platform/metrics"
	redisclient "fides/internal/platform/redis"
	"fides/internal/platform/tracer"
	"fides/internal/token"
	httptransport "fides/internal/transport/http"
	verifierservice "fides/internal/verifier/service"
	verifiersession "fides/internal/verifier/store/session"
	"fides/pkg/platform/audit/publisher"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps
// the server lifecycle small. Business logic lives in the internal
// service packages.
func main() {
	cfg, err := config.FromEnv()
	log := logger.New()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Info("initializing fides",
		"addr", cfg.Addr,
		"host", cfg.Host,
		"did", cfg.DID,
		"local", cfg.Local,
	)

	keyProvider, err := keys.Load(cfg.PrivateKeyPath, cfg.PublicKeyPath)
	if err != nil {
		log.Error("load signing keys", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	probes := health.New()
	trc := tracer.NewOTel()
	fetcher := did.NewBreakerFetcher(did.NewHTTPFetcher(cfg.HTTPTimeout), log)
	probes.RegisterCheck("outbound_fetch", fetcher.Healthy)
	resolver := did.NewResolverWithTracer(fetcher, m, trc)
	validator := token.NewValidator(resolver, m)

	var verifierStore verifiersession.Store = verifiersession.NewMemoryStore()
	var issuerStore issuersession.Store = issuersession.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		db, err := database.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		verifierStore = verifiersession.NewPostgresStore(db)
		issuerStore = issuersession.NewPostgresStore(db)
		probes.RegisterCheck("postgres", db.Ping)
		log.Info("session stores backed by postgres")
	}

	var guard issuerservice.ReplayGuard = replay.NewMemoryGuard()
	if cfg.RedisURL != "" {
		client, err := redisclient.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Error("connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		guard = replay.NewRedisGuard(client, time.Hour)
		probes.RegisterCheck("redis", func() error {
			return client.Ping(context.Background()).Err()
		})
		log.Info("replay guard backed by redis")
	}

	var auditPublisher *publisher.Publisher
	if cfg.KafkaBrokers != "" {
		sink, err := producer.New(cfg.KafkaBrokers)
		if err != nil {
			log.Error("connect to kafka", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		auditPublisher = publisher.New(sink, cfg.AuditTopic, log)
		defer auditPublisher.Close()
		log.Info("audit events published to kafka", "topic", cfg.AuditTopic)
	}

	verifierOpts := []verifierservice.Option{
		verifierservice.WithLogger(log),
		verifierservice.WithMetrics(m),
		verifierservice.WithTracer(trc),
	}
	issuerOpts := []issuerservice.Option{
		issuerservice.WithLogger(log),
		issuerservice.WithMetrics(m),
		issuerservice.WithReplayGuard(guard),
		issuerservice.WithTracer(trc),
	}
	if auditPublisher != nil {
		verifierOpts = append(verifierOpts, verifierservice.WithAudit(auditPublisher))
		issuerOpts = append(issuerOpts, issuerservice.WithAudit(auditPublisher))
	}

	verifier := verifierservice.New(verifierservice.Config{
		Host:           cfg.Host,
		Local:          cfg.Local,
		RequestedTypes: cfg.RequestedVCTypes,
		DataModel:      cfg.DataModel,
	}, validator, fetcher, verifierOpts...)

	issuer := issuerservice.New(issuerservice.Config{
		Host:      cfg.Host,
		Local:     cfg.Local,
		DID:       cfg.DID,
		Types:     cfg.RequestedVCTypes,
		DataModel: cfg.DataModel,
	}, validator, keyProvider, issuerOpts...)

	router := httptransport.NewRouter(
		httptransport.NewVerifierHandler(verifier, verifierStore, log),
		httptransport.NewIssuerHandler(issuer, issuerStore, log),
		probes,
		registry,
		log,
	)
	srv := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
