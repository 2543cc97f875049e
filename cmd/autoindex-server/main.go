package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"autoindex/internal/api"
	"autoindex/internal/config"
	"autoindex/internal/engine"
	"autoindex/internal/store"
	"autoindex/internal/util"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, config.Path()); err != nil {
		cancel()
		log.Fatalf("autoindex-server: %v", err)
	}
}

// run serves until ctx is cancelled. Every resource it opens is released
// before it returns.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	registry, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("loading strategies: %w", err)
	}

	// Create stores.
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	ps := store.NewParquetStore(cfg.Storage.DataDir)

	srv := api.NewServer(api.Deps{
		Engine:     engine.New(cfg.EngineOptions()),
		Registry:   registry,
		Prices:     ps,
		Strategies: db,
		Runs:       db,
		Artifacts:  ps,
		Capital:    cfg.Backtest.InitialCapital,
		Grid:       cfg.Grid(),
		Optimize:   cfg.OptimizeOptions(),
		RateLimit:  cfg.Server.RateLimit,
		Burst:      cfg.Server.Burst,
		Logger:     logger,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	var grpcAddr string
	if cfg.Server.GRPCPort > 0 {
		grpcAddr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
	}
	logger.Info("autoindex-server starting",
		"strategies", len(registry.List()),
		"data_dir", cfg.Storage.DataDir,
	)
	if err := srv.ListenAndServe(ctx, httpAddr, grpcAddr); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	logger.Info("autoindex-server stopped")
	return nil
}
