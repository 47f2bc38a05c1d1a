package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	httptransport "github.com/sentinelpolicy/policygate/internal/adapter/inbound/http"
	fileaudit "github.com/sentinelpolicy/policygate/internal/adapter/outbound/audit"
	"github.com/sentinelpolicy/policygate/internal/adapter/outbound/memory"
	"github.com/sentinelpolicy/policygate/internal/adapter/outbound/sql"
	"github.com/sentinelpolicy/policygate/internal/config"
	"github.com/sentinelpolicy/policygate/internal/domain/audit"
	"github.com/sentinelpolicy/policygate/internal/domain/auth"
	"github.com/sentinelpolicy/policygate/internal/domain/policy"
	"github.com/sentinelpolicy/policygate/internal/domain/ratelimit"
	"github.com/sentinelpolicy/policygate/internal/domain/session"
	"github.com/sentinelpolicy/policygate/internal/observability"
	"github.com/sentinelpolicy/policygate/internal/service"
)

var devMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the decision endpoint",
	Long: `Start the POST /runtime-check decision endpoint: authenticate,
rate limit, fetch the published policy, lock or create the session,
evaluate, redact, audit, and commit the session-state mutation.

Examples:
  policy-gate serve
  policy-gate --config /path/to/policygate.yaml serve
  policy-gate serve --dev`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "enable development mode (in-memory stores, verbose logging, stdout tracing)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := observability.NewTracerProvider(cfg.Observability.TraceExporter, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}()

	deps, cleanup, err := wireStores(cfg, logger)
	if err != nil {
		return fmt.Errorf("wire stores: %w", err)
	}
	defer cleanup()

	// HTTPTransport.Start builds its own registry for HTTP-layer metrics. The
	// decision-service instruments are registered against a throwaway
	// registry here and also handed to WithMetricsCollectors so they land
	// on the same /metrics endpoint as the transport's own metrics.
	metrics := service.NewMetrics(prometheus.NewRegistry())

	decisionService := service.NewDecisionService(service.Deps{
		AuthGate:           auth.NewGate(deps.authStore, cfg.Decision.APIKeyPrefixLength, cfg.Decision.APIKeyMinLength, cfg.Decision.APIKeyMaxCandidates),
		RateLimiter:        deps.rateLimiter,
		PolicyStore:        deps.policyStore,
		SessionStore:       deps.sessionStore,
		AuditStore:         deps.auditStore,
		Logger:             logger,
		Metrics:            metrics,
		RateLimitPerMinute: cfg.Decision.RateLimitRequestsPerMinute,
		MaxHistoryLength:   cfg.Decision.MaxHistoryLength,
	})

	var healthChecker *httptransport.HealthChecker
	if deps.pinger != nil {
		healthChecker = httptransport.NewHealthChecker(deps.pinger, Version)
	} else {
		healthChecker = httptransport.NewHealthChecker(nil, Version)
	}

	readHeaderTimeout, err := time.ParseDuration(cfg.Server.ReadHeaderTimeout)
	if err != nil {
		readHeaderTimeout = 5 * time.Second
	}
	shutdownTimeout, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = 10 * time.Second
	}

	transport := httptransport.NewHTTPTransport(decisionService,
		httptransport.WithAddr(cfg.Server.HTTPAddr),
		httptransport.WithLogger(logger),
		httptransport.WithHealthChecker(healthChecker),
		httptransport.WithMaxPayloadBytes(cfg.Decision.MaxPayloadBytes),
		httptransport.WithReadHeaderTimeout(readHeaderTimeout),
		httptransport.WithShutdownTimeout(shutdownTimeout),
		httptransport.WithRequestDeadline(time.Duration(cfg.Decision.RequestDeadlineMs)*time.Millisecond),
		httptransport.WithMetricsCollectors(
			metrics.DecisionRequestsTotal,
			metrics.DecisionDuration,
			metrics.RateLimitRejections,
			metrics.AuditWriteFailures,
			metrics.SessionsActive,
		),
	)

	logger.Info("policy-gate starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"store_dsn", cfg.Store.DSN,
		"audit_backend", cfg.Audit.Backend,
	)

	if err := transport.Start(ctx); err != nil {
		return err
	}
	logger.Info("policy-gate stopped")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// storeDeps bundles the wired outbound ports plus an optional pinger for
// the health endpoint and a cleanup function releasing any open handles.
type storeDeps struct {
	authStore    auth.Store
	policyStore  policy.Store
	sessionStore session.Store
	auditStore   audit.Store
	rateLimiter  ratelimit.Limiter
	pinger       httptransport.Pinger
}

// wireStores selects the SQL-backed or in-memory implementations of the
// policy, session, auth and rate-limit stores depending on DevMode, and
// the audit backend independently per cfg.Audit.Backend. DevMode trades
// durability for a zero-setup local loop.
func wireStores(cfg *config.Config, logger *slog.Logger) (storeDeps, func(), error) {
	if cfg.DevMode {
		deps := storeDeps{
			authStore:    memory.NewAuthStore(),
			policyStore:  memory.NewPolicyStore(),
			sessionStore: memory.NewSessionStore(),
			rateLimiter:  memory.NewRateLimiter(),
		}
		auditStore, cleanupAudit, err := wireAuditStore(cfg, logger, nil)
		if err != nil {
			return storeDeps{}, nil, err
		}
		deps.auditStore = auditStore
		return deps, cleanupAudit, nil
	}

	db, err := sql.Open(cfg.Store.DSN, cfg.Store.MaxOpenConns)
	if err != nil {
		return storeDeps{}, nil, fmt.Errorf("open database: %w", err)
	}

	deps := storeDeps{
		authStore:    sql.NewAuthStore(db),
		policyStore:  sql.NewPolicyStore(db),
		sessionStore: sql.NewSessionStore(db),
		rateLimiter:  sql.NewRateLimiter(db),
		pinger:       db,
	}
	auditStore, cleanupAudit, err := wireAuditStore(cfg, logger, db)
	if err != nil {
		_ = db.Close()
		return storeDeps{}, nil, err
	}
	deps.auditStore = auditStore

	cleanup := func() {
		cleanupAudit()
		_ = db.Close()
	}
	return deps, cleanup, nil
}

// wireAuditStore selects the audit backend independently of the other
// stores: "sql" requires db (production default), "file" is the
// cross-process flock-protected fallback, "memory" is dev/test only.
func wireAuditStore(cfg *config.Config, logger *slog.Logger, db *sql.DB) (audit.Store, func(), error) {
	switch cfg.Audit.Backend {
	case "file":
		store, err := fileaudit.NewFileStore(fileaudit.Config{
			Dir:           cfg.Audit.FileDir,
			RetentionDays: cfg.Audit.RetentionDays,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open file audit store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case "memory":
		store := memory.NewAuditStore()
		return store, func() { _ = store.Close() }, nil
	default:
		if db == nil {
			store := memory.NewAuditStore()
			return store, func() { _ = store.Close() }, nil
		}
		store := sql.NewAuditStore(db)
		return store, func() { _ = store.Close() }, nil
	}
}
