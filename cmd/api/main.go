package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iago/food-search-pipeline/internal/app"
	"github.com/iago/food-search-pipeline/internal/broker"
	"github.com/iago/food-search-pipeline/internal/config"
	"github.com/iago/food-search-pipeline/internal/domain"
	"github.com/iago/food-search-pipeline/internal/facade"
	httpserver "github.com/iago/food-search-pipeline/internal/http"
	"github.com/iago/food-search-pipeline/internal/http/handlers"
	"github.com/iago/food-search-pipeline/internal/logger"
	"github.com/iago/food-search-pipeline/internal/metrics"
	"github.com/iago/food-search-pipeline/internal/repository"
	"github.com/iago/food-search-pipeline/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("api stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline := metrics.NewDefault()

	// Broker sections are resolved per request; a missing section fails the
	// request, not the process.
	connections := broker.NewConnectionProvider(cfg, broker.AMQPDialer{ClientName: "food-search-api"}, log)
	defer func() { _ = connections.Close() }()
	scopes := facade.NewScopeFactory(connections, facade.Routes{
		Search: domain.Route{Broker: cfg.Search.Broker, Destination: cfg.Search.Queue},
	}, pipeline)

	checks := []handlers.HealthCheck{{
		Name: "rabbitmq",
		Check: func(ctx context.Context) error {
			_, err := connections.Get(ctx, cfg.Search.Broker)
			return err
		},
	}}

	records, recordsCloser, err := setupRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer recordsCloser()
	checks = append(checks, handlers.HealthCheck{Name: "records", Check: records.Ping})

	var results service.ResultLookup
	if cfg.Redis.Enabled() {
		store, closeRedis, err := app.ConnectRedis(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = closeRedis() }()
		results = store
		checks = append(checks, handlers.HealthCheck{Name: "redis", Check: store.Ping})
	} else {
		log.Info("REDIS_HOST_NAME not configured, result cache shortcut disabled")
	}

	searchService := service.NewSearchService(scopes, records, results, log)
	handler := httpserver.NewRouter(ctx, httpserver.RouterDependencies{
		API:            handlers.NewAPI(searchService, checks...),
		Logger:         log,
		Metrics:        pipeline,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("api listening", zap.String("addr", server.Addr))
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

func setupRepository(
	ctx context.Context,
	cfg config.Config,
	log *zap.Logger,
) (repository.SearchRequestRepository, func(), error) {
	if !cfg.Postgres.Enabled() {
		log.Info("DATABASE_URL and POSTGRES_HOST not configured, using in-memory repository")
		return repository.NewMemorySearchRequests(), func() {}, nil
	}

	repo, err := app.ConnectPostgres(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}
