package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iago/food-search-pipeline/internal/app"
	"github.com/iago/food-search-pipeline/internal/catalog"
	"github.com/iago/food-search-pipeline/internal/config"
	"github.com/iago/food-search-pipeline/internal/logger"
)

func main() {
	path := flag.String("file", "foods.yaml", "catalogue to load into the tag index")
	flag.Parse()

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
	defer func() { _ = log.Sync() }()

	if !cfg.Redis.Enabled() {
		log.Error("REDIS_HOST_NAME environment variable is not set")
		os.Exit(config.ExitCodeMissingConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := seed(ctx, cfg, log, *path); err != nil {
		log.Error("seeding failed", zap.Error(err))
		os.Exit(1)
	}
}

func seed(ctx context.Context, cfg config.Config, log *zap.Logger, path string) error {
	catalogue, err := catalog.Load(path)
	if err != nil {
		return err
	}

	store, closeRedis, err := app.ConnectRedis(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeRedis() }()

	tags, err := catalog.Seed(ctx, store, catalogue)
	if err != nil {
		return err
	}
	log.Info("tag index seeded", zap.Int("foods", len(catalogue.Foods)), zap.Int("tags", tags))
	return nil
}
