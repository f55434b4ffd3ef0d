// Package main is the entrypoint for the operator service API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/operator-service/internal/api"
	"github.com/kiranshivaraju/operator-service/internal/api/handler"
	mw "github.com/kiranshivaraju/operator-service/internal/api/middleware"
	"github.com/kiranshivaraju/operator-service/internal/cache"
	"github.com/kiranshivaraju/operator-service/internal/cluster"
	"github.com/kiranshivaraju/operator-service/internal/compute"
	"github.com/kiranshivaraju/operator-service/internal/config"
	"github.com/kiranshivaraju/operator-service/internal/environment"
	"github.com/kiranshivaraju/operator-service/internal/observability"
	"github.com/kiranshivaraju/operator-service/internal/result"
	"github.com/kiranshivaraju/operator-service/internal/signature"
	"github.com/kiranshivaraju/operator-service/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	softwareName    = "Operator service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"dispatch", cfg.Cluster.Dispatch,
		"signature_required", cfg.Auth.SignatureRequired,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Optional Redis cache
	var redisCache cache.Cache
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer rc.Close()

		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		redisCache = rc
		slog.Info("redis connected")
	} else {
		slog.Info("redis disabled, using in-process rate limiting")
	}

	// 5. Metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	// 6. Cluster client
	restCfg, err := cluster.LoadRESTConfig(cfg.Cluster.Kubeconfig)
	if err != nil {
		return fmt.Errorf("load cluster config: %w", err)
	}
	executor, err := cluster.NewFromConfig(restCfg, cfg.Cluster.Group, cfg.Cluster.Version, cfg.Cluster.Plural)
	if err != nil {
		return fmt.Errorf("create cluster client: %w", err)
	}
	slog.Info("cluster client initialized", "host", restCfg.Host)

	// 7. Build router with dependencies
	deps, err := buildDependencies(ctx, cfg, infra{
		store:          store.NewPostgresStore(pool),
		cache:          redisCache,
		cluster:        executor,
		metrics:        metrics,
		metricsHandler: metricsHandler,
		migrate: func(context.Context) (uint, error) {
			if err := store.RunMigrations(cfg.Database.URL); err != nil {
				return 0, err
			}
			version, _, err := store.SchemaVersion(cfg.Database.URL)
			return version, err
		},
	})
	if err != nil {
		return err
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// clusterClient is what the server needs from the cluster executor.
type clusterClient interface {
	handler.ClusterReader
	compute.Dispatcher
}

// infra holds the connected backends the HTTP layer is built on.
// cache may be nil.
type infra struct {
	store          store.Store
	cache          cache.Cache
	cluster        clusterClient
	metrics        *observability.Metrics
	metricsHandler http.Handler
	migrate        handler.Migrator
}

func buildDependencies(ctx context.Context, cfg *config.Config, in infra) (api.Dependencies, error) {
	auth := signature.NewAuthenticator(cfg.Auth.SignatureRequired, cfg.Auth.AllowedProviders)

	registry := environment.NewRegistry(in.store, cfg.Jobs.AnnounceLimit).WithMetrics(in.metrics)
	if in.cache != nil {
		registry = registry.WithCache(in.cache, cfg.Redis.EnvironmentsTTL)
	}

	computeSvc := compute.NewService(in.store, registry, auth, in.cluster, in.metrics, compute.Options{
		Group:          cfg.Cluster.Group,
		Version:        cfg.Cluster.Version,
		AlgoPodTimeout: cfg.Jobs.AlgoPodTimeout,
		Resources:      cfg.Jobs.Resources,
		InlineDispatch: cfg.Cluster.Dispatch == config.DispatchInline,
	})

	fetchers := result.NewMux()
	httpFetcher := result.NewHTTPFetcher(cfg.Results.FetchTimeout, cfg.Results.IPFSAPIKey, cfg.Results.IPFSClientID)
	fetchers.Handle("http", httpFetcher)
	fetchers.Handle("https", httpFetcher)
	s3Fetcher, err := result.NewS3Fetcher(ctx, cfg.Results.S3)
	if err != nil {
		return api.Dependencies{}, fmt.Errorf("create s3 fetcher: %w", err)
	}
	fetchers.Handle("s3", s3Fetcher)
	resultSvc := result.NewService(in.store, auth, fetchers, in.metrics)

	var counter mw.Counter
	var cachePinger handler.Pinger
	if in.cache != nil {
		counter = in.cache
		cachePinger = in.cache
	}

	ns := cfg.Jobs.DefaultNamespace
	return api.Dependencies{
		Admin:      mw.NewAdminAuth(cfg.Auth.AllowedAdmins),
		RateLimit:  mw.NewRateLimit(counter, cfg.Server.RateLimitPerMinute),
		Metrics:    in.metrics,
		TrustProxy: cfg.Server.TrustProxy,

		ServiceInfoHandler: handler.NewServiceInfoHandler(handler.ServiceInfo{
			Software:          softwareName,
			Version:           cfg.Server.Version,
			Address:           cfg.Server.Address,
			AlgoTimeLimit:     cfg.Jobs.AlgoPodTimeout,
			StorageExpiry:     cfg.Jobs.StorageExpiry,
			SignatureRequired: cfg.Auth.SignatureRequired,
		}),
		HealthHandler:  handler.NewHealthHandler(in.store, cachePinger),
		MetricsHandler: in.metricsHandler,

		StartJobHandler:     handler.NewStartJobHandler(computeSvc),
		StopJobHandler:      handler.NewStopJobHandler(computeSvc),
		DeleteJobHandler:    handler.NewDeleteJobHandler(computeSvc),
		JobStatusHandler:    handler.NewJobStatusHandler(computeSvc),
		RunningJobsHandler:  handler.NewRunningJobsHandler(computeSvc),
		GetResultHandler:    handler.NewGetResultHandler(resultSvc),
		EnvironmentsHandler: handler.NewListEnvironmentsHandler(registry),

		PgsqlInitHandler: handler.NewPgsqlInitHandler(in.migrate),
		JobInfoHandler:   handler.NewJobInfoHandler(in.cluster, ns),
		ListJobsHandler:  handler.NewListWorkflowsHandler(in.cluster, ns),
		LogsHandler:      handler.NewLogsHandler(in.cluster, ns),
		AnnounceHandler:  handler.NewAnnounceHandler(registry),
	}, nil
}
