// Pagesmith's billing and API edge service. Handles payment provider
// webhooks, the team credit ledger, API key management, authenticated
// document conversion, and the anonymous free-tool quota.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/pagesmith/pagesmith/pkg/apikeys"
	"github.com/pagesmith/pagesmith/pkg/billing"
	"github.com/pagesmith/pagesmith/pkg/config"
	"github.com/pagesmith/pagesmith/pkg/credits"
	"github.com/pagesmith/pagesmith/pkg/middleware"
	"github.com/pagesmith/pagesmith/pkg/observability"
	"github.com/pagesmith/pagesmith/pkg/plans"
	"github.com/pagesmith/pagesmith/pkg/quota"
	"github.com/pagesmith/pagesmith/pkg/render"
	"github.com/pagesmith/pagesmith/pkg/storage"
	"github.com/pagesmith/pagesmith/pkg/storage/postgres"
	"github.com/pagesmith/pagesmith/pkg/teams"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pagesmith: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", observability.Version).Info("starting pagesmith")

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	db, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
	}, logger)
	if err != nil {
		return fmt.Errorf("database setup failed: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := postgres.RunMigrations(ctx, db.Primary(), logger); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	// Redis only serves the burst limiter, which fails open. A missing or
	// unreachable Redis degrades the service instead of blocking startup.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = storage.NewRedisClient(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, burst limiting disabled")
			redisClient = nil
		}
	}

	catalog := plans.DefaultCatalog()
	if cfg.Billing.PlanCatalogPath != "" {
		catalog, err = plans.LoadCatalog(cfg.Billing.PlanCatalogPath)
		if err != nil {
			return fmt.Errorf("plan catalog load failed: %w", err)
		}
	}

	teamService := teams.NewReplicatedPostgresService(db.Primary(), db.Replica())
	ledger := credits.NewPostgresLedger(db.Primary())
	keyService := apikeys.NewReplicatedPostgresService(db.Primary(), db.Replica())

	resolver, err := billing.NewResolver(teamService)
	if err != nil {
		return fmt.Errorf("billing resolver setup failed: %w", err)
	}
	var provider billing.ProviderClient
	if cfg.Billing.ProviderAPIKey != "" {
		provider = billing.NewHTTPProviderClient(
			cfg.Billing.ProviderBaseURL, cfg.Billing.ProviderAPIKey, cfg.Billing.ProviderTimeout)
	} else {
		logger.Warn("no billing provider API key, thin checkout payloads cannot be expanded")
	}
	verifier := billing.NewVerifier(cfg.Billing.WebhookSecret, cfg.Billing.SignatureTolerance)
	eventRouter := billing.NewRouter(teamService, ledger, catalog, resolver, provider, logger, metrics)
	billingHandlers := billing.NewHandlers(verifier, eventRouter, logger, metrics)

	renderClient := render.NewHTTPClient(cfg.Renderer.BaseURL, cfg.Renderer.InternalKey, cfg.Renderer.Timeout)
	renderHandlers := render.NewHandlers(renderClient, ledger, logger, metrics)

	quotaStore := quota.NewPostgresStore(db.Primary())
	enforcer := quota.NewEnforcer(quotaStore, cfg.Quota.Limit, cfg.Quota.Window)
	turnstile := quota.NewTurnstileVerifier(cfg.Quota.TurnstileSecret, cfg.Quota.TurnstileTimeout)
	quotaHandlers := quota.NewHandlers(enforcer, turnstile, renderClient,
		cfg.Quota.TurnstileRequired, logger, metrics)

	sweeper := quota.NewSweeper(quotaStore, cfg.Quota.Window, logger)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("quota sweeper setup failed: %w", err)
	}
	defer sweeper.Stop()

	keyHandlers := apikeys.NewHandlers(keyService, teamService)

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(observability.HTTPMetricsMiddleware(metrics))

	// The webhook authenticates itself by signature
	billingHandlers.RegisterRoutes(router)

	// Key management trusts identity forwarded by the front proxy
	keyRouter := router.NewRoute().Subrouter()
	keyRouter.Use(middleware.Identity)
	keyHandlers.RegisterRoutes(keyRouter)

	// Programmatic conversion is API key authenticated
	apiAuth := middleware.NewAPIKeyAuth(keyService)
	convertRouter := router.NewRoute().Subrouter()
	convertRouter.Use(apiAuth.Handler)
	renderHandlers.RegisterRoutes(convertRouter)

	// Anonymous tools sit behind the short-window burst limiter; the
	// 24-hour quota enforcer applies inside the handler
	publicRouter := router.NewRoute().Subrouter()
	if redisClient != nil {
		limiter := middleware.NewDistributedRateLimiter(redisClient, nil, "pagesmith")
		publicRouter.Use(limiter.Handler)
	}
	quotaHandlers.RegisterRoutes(publicRouter)

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db.Primary(), redisClient, renderClient.Ping)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		if redisClient != nil {
			return redisClient.Close()
		}
		return nil
	})

	go reportPoolMetrics(ctx, db, metrics)

	g := new(errgroup.Group)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})
	go func() {
		if err := shutdown.WaitForShutdown(); err != nil {
			logger.WithError(err).Error("graceful shutdown failed")
		}
	}()

	return g.Wait()
}

// reportPoolMetrics periodically copies connection pool stats into the
// database gauges until the context is cancelled.
func reportPoolMetrics(ctx context.Context, db *postgres.ConnectionManager, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			db.ReportPoolMetrics(metrics)
		}
	}
}
