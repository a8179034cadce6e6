package app

import (
	"log/slog"

	"crypto_monitor/internal/infra"
	"crypto_monitor/internal/infra/storage"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.SQLiteStorage
	Writer  *storage.BatchWriter
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB).
func (b *Bootstrap) Initialize(configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	slog.Info("🚀 Bootstrapping market monitor...",
		slog.String("version", cfg.App.Version),
		slog.Int("symbols", len(cfg.Feed.Symbols)))

	// 3. Initialize Storage (DB) and the batch write path
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	b.Writer = storage.NewBatchWriter(store, cfg.Database.BatchSize)
	slog.Info("✅ Database initialized",
		slog.String("path", cfg.Database.Path),
		slog.Int("batch_size", cfg.Database.BatchSize))

	return nil
}
