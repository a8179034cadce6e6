package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crypto_monitor/internal/app"
	"crypto_monitor/internal/domain"
	"crypto_monitor/internal/infra"
	"crypto_monitor/internal/infra/binance"
	"crypto_monitor/internal/service"
	"crypto_monitor/internal/viz"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// 1. System Bootstrapping (config, logger, storage, batch writer)
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	infra.PrintBanner(cfg)

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Shared market state and collaborators
	console := infra.NewStdConsole()
	market := domain.NewMarketState(cfg.Feed.Symbols, cfg.Market.HistoryCapacity)
	alerts := domain.NewAlertBook()

	worker := binance.NewWorker(cfg.Feed.WSURL, cfg.Feed.Symbols, market, bootstrap.Writer).
		WithConsole(console).
		WithAlerts(alerts)
	if cfg.Feed.RestURL != "" {
		worker.WithSnapshots(binance.NewSnapshotClient(cfg.Feed.RestURL))
	}

	var view domain.View
	depthView := viz.NewDepthView(market, cfg.Viz.OutputDir,
		time.Duration(cfg.Viz.RefreshIntervalMS)*time.Millisecond)
	view = depthView

	// 4. Lifecycle wiring: every shutdown trigger funnels into the coordinator.
	var commands *service.CommandService
	var coordinator *app.Coordinator
	commands = service.NewCommandService(console, market, worker, bootstrap.Writer, alerts, view, func() {
		coordinator.Shutdown()
	})
	coordinator = app.NewCoordinator(console, commands, worker, view, bootstrap.Writer)

	// 5. Start the command loop and the feed
	console.Report(fmt.Sprintf("Starting market monitor with database: %s", cfg.Database.Path), domain.SeverityInfo, true)
	console.Report(fmt.Sprintf("Tracking symbols: %s", strings.Join(cfg.Feed.Symbols, ", ")), domain.SeverityInfo, true)

	commands.Start(ctx)

	if err := worker.Connect(ctx); err != nil {
		slog.Error("Failed to start feed worker", slog.Any("error", err))
	}

	// 6. Optional visualization
	if cfg.Viz.Enabled {
		console.Report("Starting depth visualization...", domain.SeverityInfo, false)
		if depthView.Start() {
			console.Report(fmt.Sprintf("Visualization started. PNGs refresh under %s/.", cfg.Viz.OutputDir), domain.SeveritySuccess, true)
		} else {
			console.Report("Failed to start visualization.", domain.SeverityError, false)
		}
	}

	console.Report("Type 'help' for available commands, 'status' for connection info, or 'reconnect' to reset connection.", domain.SeverityInfo, true)

	// 7. Wait for a shutdown trigger, then run the single teardown path.
	select {
	case <-ctx.Done():
		console.Report("Received interrupt signal. Shutting down...", domain.SeverityInfo, true)
	case <-coordinator.Done():
		// quit command already ran the teardown
	}

	coordinator.Shutdown()
}
