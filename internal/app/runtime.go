// Package app assembles the long-running stage processes.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/iago/food-search-pipeline/internal/bootstrap"
	"github.com/iago/food-search-pipeline/internal/broker"
	"github.com/iago/food-search-pipeline/internal/config"
	"github.com/iago/food-search-pipeline/internal/domain"
	"github.com/iago/food-search-pipeline/internal/facade"
	httpserver "github.com/iago/food-search-pipeline/internal/http"
	"github.com/iago/food-search-pipeline/internal/http/handlers"
	"github.com/iago/food-search-pipeline/internal/logger"
	"github.com/iago/food-search-pipeline/internal/metrics"
	"github.com/iago/food-search-pipeline/internal/outcome"
	"github.com/iago/food-search-pipeline/internal/worker"
)

// Runtime owns the dependencies of one stage process. They are created once
// at start-up and released together by Close.
type Runtime struct {
	Config      config.Config
	Stage       config.Stage
	Logger      *zap.Logger
	Metrics     *metrics.Pipeline
	Connections *broker.ConnectionProvider

	consume *broker.ChannelProvider
	publish *facade.Scope
	checks  []handlers.HealthCheck
	closers []func() error
}

func NewRuntime(
	cfg config.Config,
	stage config.Stage,
	log *zap.Logger,
	dialer broker.Dialer,
	pipeline *metrics.Pipeline,
) *Runtime {
	log = logger.OrNop(log)
	if pipeline == nil {
		registry := prometheus.NewRegistry()
		pipeline = metrics.New(registry, registry)
	}

	connections := broker.NewConnectionProvider(cfg, dialer, log)
	rt := &Runtime{
		Config:      cfg,
		Stage:       stage,
		Logger:      log,
		Metrics:     pipeline,
		Connections: connections,
		consume:     broker.NewChannelProvider(connections),
		publish:     facade.NewScope(connections, stageRoutes(cfg, stage), pipeline),
	}
	rt.AddCheck("rabbitmq", rt.checkBroker)
	return rt
}

func stageRoutes(cfg config.Config, stage config.Stage) facade.Routes {
	routes := facade.Routes{
		Search: domain.Route{Broker: cfg.Search.Broker, Destination: cfg.Search.Queue},
	}
	next := domain.Route{Broker: config.StageBroker, Destination: cfg.Stage.ResponseQueue}
	switch stage {
	case config.StageResolver:
		routes.Resolved = next
	case config.StageMaterializer:
		routes.Materialized = next
	}
	return routes
}

// Facade publishes to the next stage on a channel owned by the runtime.
func (rt *Runtime) Facade() *facade.Facade {
	return rt.publish.Facade
}

func (rt *Runtime) AddCheck(name string, check func(context.Context) error) {
	rt.checks = append(rt.checks, handlers.HealthCheck{Name: name, Check: check})
}

// OnClose registers fn to run, in reverse registration order, on Close.
func (rt *Runtime) OnClose(fn func() error) {
	rt.closers = append(rt.closers, fn)
}

// ConnectBroker establishes the stage broker connection, retrying until the
// bootstrap budget is exhausted.
func (rt *Runtime) ConnectBroker(ctx context.Context) error {
	return bootstrap.Do(ctx, "RabbitMQ", retryOptions(rt.Config, rt.Logger), func(ctx context.Context) error {
		_, err := rt.Connections.Get(ctx, config.StageBroker)
		return err
	})
}

func (rt *Runtime) checkBroker(ctx context.Context) error {
	conn, err := rt.Connections.Get(ctx, config.StageBroker)
	if err != nil {
		return err
	}
	if conn.IsClosed() {
		return outcome.Internal(nil, "RabbitMQ Connection is not open")
	}
	return nil
}

func (rt *Runtime) workerOptions() worker.Options {
	return worker.Options{
		Stage:          string(rt.Stage),
		Broker:         config.StageBroker,
		Queue:          rt.Config.Stage.RequestQueue,
		Prefetch:       rt.Config.Stage.Prefetch,
		HandlerTimeout: rt.Config.Stage.HandlerTimeout,
		Observer:       rt.Metrics,
		Logger:         rt.Logger,
	}
}

// Consumer binds handler to the stage's request queue. The returned function
// blocks until ctx is canceled.
func Consumer[T any](rt *Runtime, handler worker.Handler[T]) func(context.Context) {
	return worker.New(rt.consume, handler, rt.workerOptions()).Start
}

// ServeOps serves /healthz and /metrics on the configured address until ctx
// is canceled.
func (rt *Runtime) ServeOps(ctx context.Context) {
	server := &http.Server{
		Addr:              rt.Config.Stage.MetricsAddr,
		Handler:           httpserver.NewOpsRouter(rt.Metrics, rt.checks...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		rt.Logger.Info("ops server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Logger.Error("ops server failed", zap.Error(err))
		}
	}()
}

// Close releases channels first, then connections, then everything
// registered with OnClose.
func (rt *Runtime) Close() error {
	errs := []error{
		rt.publish.Close(),
		rt.consume.Close(),
		rt.Connections.Close(),
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	return errors.Join(errs...)
}
