package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iago/food-search-pipeline/internal/broker"
	"github.com/iago/food-search-pipeline/internal/config"
	"github.com/iago/food-search-pipeline/internal/files"
	"github.com/iago/food-search-pipeline/internal/logger"
	"github.com/iago/food-search-pipeline/internal/metrics"
	"github.com/iago/food-search-pipeline/internal/stage/materializer"
	"github.com/iago/food-search-pipeline/internal/stage/recorder"
	"github.com/iago/food-search-pipeline/internal/stage/resolver"
)

// Setup prepares a stage's dependencies and returns its consume loop.
type Setup func(ctx context.Context, rt *Runtime) (func(context.Context), error)

func SetupResolver(ctx context.Context, rt *Runtime) (func(context.Context), error) {
	store, closeRedis, err := ConnectRedis(ctx, rt.Config, rt.Logger)
	if err != nil {
		return nil, err
	}
	rt.OnClose(closeRedis)
	rt.AddCheck("redis", store.Ping)

	handler := resolver.New(store, rt.Facade().ForwardResolved())
	return Consumer(rt, handler.Handle), nil
}

func SetupMaterializer(_ context.Context, rt *Runtime) (func(context.Context), error) {
	writer := files.NewWriter(rt.Config.Stage.OutputPath)
	rt.AddCheck("output", writer.Ready)

	handler := materializer.New(writer, rt.Facade().ForwardMaterialized())
	return Consumer(rt, handler.Handle), nil
}

func SetupRecorder(ctx context.Context, rt *Runtime) (func(context.Context), error) {
	repo, err := ConnectPostgres(ctx, rt.Config, rt.Logger)
	if err != nil {
		return nil, err
	}
	rt.OnClose(func() error {
		repo.Close()
		return nil
	})
	rt.AddCheck("postgres", repo.Ping)

	store, closeRedis, err := ConnectRedis(ctx, rt.Config, rt.Logger)
	if err != nil {
		return nil, err
	}
	rt.OnClose(closeRedis)
	rt.AddCheck("redis", store.Ping)

	handler := recorder.New(repo, store, rt.Config.ResultCacheTTL)
	return Consumer(rt, handler.Handle), nil
}

// Main runs a stage process and exits with its status.
func Main(stage config.Stage, setup Setup) {
	os.Exit(run(stage, setup))
}

func run(stage config.Stage, setup Setup) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		return 1
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.ValidateStage(stage); err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return config.ExitCodeMissingConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := broker.AMQPDialer{ClientName: "food-search-" + string(stage)}
	rt := NewRuntime(cfg, stage, log, dialer, metrics.NewDefault())
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("shutdown finished with errors", zap.Error(err))
		}
	}()

	if err := rt.ConnectBroker(ctx); err != nil {
		log.Error("startup failed", zap.Error(err))
		return 1
	}
	consume, err := setup(ctx, rt)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return 1
	}

	rt.ServeOps(ctx)
	log.Info("stage is working", zap.String("stage", string(stage)), zap.String("queue", cfg.Stage.RequestQueue))
	consume(ctx)
	log.Info("shutdown signal received")
	return 0
}
