package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	affiliatestore "onboard/internal/affiliate/store"
	"onboard/internal/affiliate/validation"
	httpapi "onboard/internal/http"
	jwttoken "onboard/internal/jwt_token"
	"onboard/internal/notification"
	"onboard/internal/platform/config"
	"onboard/internal/platform/httpserver"
	"onboard/internal/platform/logger"
	"onboard/internal/platform/metrics"
	"onboard/internal/platform/otel"
	"onboard/internal/platform/postgres"
	"onboard/internal/platform/redis"
	"onboard/internal/registration/handler"
	registrationmetrics "onboard/internal/registration/metrics"
	"onboard/internal/registration/resolver"
	"onboard/internal/registration/service"
	"onboard/internal/registration/store"
	"onboard/internal/registration/tokens"
	audit "onboard/pkg/platform/audit"
	"onboard/pkg/platform/audit/publisher"
	auditkafka "onboard/pkg/platform/audit/store/kafka"
	auditmemory "onboard/pkg/platform/audit/store/memory"
	"onboard/pkg/platform/circuit"
	authmw "onboard/pkg/platform/middleware/auth"
	"onboard/pkg/platform/middleware/ratelimit"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// sessionBackend is what both session store implementations provide.
type sessionBackend interface {
	service.SessionStore
	resolver.Scanner
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	checks := map[string]httpapi.HealthCheck{}

	sessions, closeSessions, err := buildSessionStore(ctx, cfg.Redis, log, checks)
	if err != nil {
		return err
	}
	defer closeSessions()

	affiliates, closeAffiliates, err := buildAffiliateStore(ctx, cfg.Postgres, log, checks)
	if err != nil {
		return err
	}
	defer closeAffiliates()

	gateway, err := buildNotifier(cfg.Notification, log)
	if err != nil {
		return err
	}

	shutdownTracing, err := otel.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	auditStore, closeAudit, err := buildAuditStore(ctx, cfg.Audit, log)
	if err != nil {
		return err
	}
	defer closeAudit()
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithLogger(log),
	)
	defer auditPublisher.Close()

	svc, err := service.New(
		sessions,
		resolver.New(sessions),
		tokens.New(),
		affiliates,
		gateway,
		service.Config{
			SessionTTL:              cfg.Registration.SessionTTL,
			MaxVerificationAttempts: cfg.Registration.MaxVerificationAttempts,
			DecisionLease:           cfg.Registration.DecisionLease,
			PublicBaseURL:           cfg.Registration.PublicBaseURL,
			ReviewerEmails:          cfg.Registration.ReviewerEmails,
		},
		service.WithLogger(log),
		service.WithMetrics(registrationmetrics.New()),
		service.WithAuditPublisher(auditPublisher),
		service.WithValidator(validation.New(
			validation.WithBlockedDomains(cfg.Registration.BlockedDomains),
			validation.WithAllowedCountries(cfg.Registration.AllowedCountries),
		)),
	)
	if err != nil {
		return fmt.Errorf("registration service: %w", err)
	}

	httpMetrics := metrics.New()
	jwtService := jwttoken.NewJWTService(cfg.Server.SigningKey(), cfg.Server.ReviewerIssuer, cfg.Server.ReviewerAudience)
	limiter := ratelimit.New(
		ratelimit.Config{Requests: cfg.RateLimit.Requests, Window: cfg.RateLimit.Window, Burst: cfg.RateLimit.Burst},
		ratelimit.WithLogger(log),
		ratelimit.WithOnLimited(func(r *http.Request) { httpMetrics.IncRateLimited(routeLabel(r)) }),
	)
	registrationHandler := handler.New(svc, log,
		authmw.RequireReviewer(jwttoken.NewJWTServiceAdapter(jwtService), log),
		limiter.Middleware,
	)

	router := httpapi.NewRouter(
		httpapi.Config{RequestTimeout: cfg.Server.RequestTimeout, OpsToken: cfg.Server.OpsToken},
		log, httpMetrics, checks, registrationHandler,
	)
	srv := httpserver.New(cfg.Server, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting onboard", "addr", cfg.Server.Addr, "dev_mode", cfg.Server.DevMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func buildSessionStore(ctx context.Context, cfg config.RedisConfig, log *slog.Logger, checks map[string]httpapi.HealthCheck) (sessionBackend, func(), error) {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("session store: %w", err)
	}
	if client == nil {
		log.Warn("ONBOARD_REDIS_URL not set, sessions are kept in memory")
		return store.NewInMemory(), func() {}, nil
	}
	checks["redis"] = client.Health
	sessions := store.NewRedis(client.Client, store.WithLogger(log), store.WithScanCount(cfg.ScanCount))
	return sessions, func() { _ = client.Close() }, nil
}

func buildAffiliateStore(ctx context.Context, cfg config.PostgresConfig, log *slog.Logger, checks map[string]httpapi.HealthCheck) (service.AffiliateStore, func(), error) {
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("affiliate store: %w", err)
	}
	if db == nil {
		log.Warn("ONBOARD_DATABASE_URL not set, affiliates are kept in memory")
		return affiliatestore.NewInMemory(), func() {}, nil
	}
	checks["postgres"] = db.PingContext
	affiliates := affiliatestore.NewPostgres(db)
	if cfg.Migrate {
		if err := affiliates.ApplyMigrations(); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return affiliates, closeDB(db), nil
}

// routeLabel prefers the matched chi pattern so session ids stay out of labels.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

// buildAuditStore ships events to Kafka when brokers are configured. The
// in-memory store always backs reads.
func buildAuditStore(ctx context.Context, cfg config.Audit, log *slog.Logger) (audit.Store, func(), error) {
	index := auditmemory.NewInMemoryStore()
	if len(cfg.KafkaBrokers) == 0 {
		return index, func() {}, nil
	}

	client, err := auditkafka.NewClient(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, fmt.Errorf("audit sink: %w", err)
	}
	if err := auditkafka.EnsureTopic(ctx, client, cfg.KafkaTopic, cfg.TopicPartitions, cfg.TopicReplication); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("audit sink: %w", err)
	}
	log.Info("audit events shipped to kafka", "topic", cfg.KafkaTopic)
	return auditkafka.New(client, cfg.KafkaTopic, index), client.Close, nil
}

func buildNotifier(cfg config.Notification, log *slog.Logger) (*notification.Gateway, error) {
	renderer, err := notification.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("notification templates: %w", err)
	}

	var sender notification.Sender
	if cfg.SendGridAPIKey != "" {
		sender = notification.NewSendGridSender(cfg.SendGridAPIKey, cfg.FromAddress, cfg.FromName)
	} else {
		log.Warn("ONBOARD_SENDGRID_API_KEY not set, notifications are logged")
		sender = notification.NewLogSender(log)
	}

	breaker := circuit.New("notification",
		circuit.WithFailureThreshold(cfg.FailureThreshold),
		circuit.WithCoolDown(cfg.CoolDown),
	)
	return notification.NewGateway(sender, renderer,
		notification.WithLogger(log),
		notification.WithBreaker(breaker),
		notification.WithSendTimeout(cfg.SendTimeout),
	), nil
}
