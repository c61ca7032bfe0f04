package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/meroku/framecaster/internal/app"
	"github.com/meroku/framecaster/internal/config"
	"github.com/meroku/framecaster/internal/logging"
	"github.com/meroku/framecaster/internal/telemetry"
)

func main() {
	// Check for subcommands before flag parsing
	if len(os.Args) > 1 && os.Args[1] == "warm" {
		runWarm(os.Args[2:])
		return
	}

	// Setup CLI flags
	flags := config.SetupFlags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("error parsing flags", "error", err)
		os.Exit(1)
	}

	// Get config path from flags
	configPath, _ := flags.GetString("config")

	// Load configuration
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		slog.Error("error loading config", "error", err)
		os.Exit(1)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup telemetry, then structured logging fanned out to it
	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("error setting up telemetry", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log, tel.Handlers()...)

	// Create application
	application, err := app.New(cfg)
	if err != nil {
		slog.Error("error creating application", "error", err)
		os.Exit(1)
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("received shutdown signal")
		cancel()

		// Give server time to shutdown gracefully
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("error during shutdown", "error", err)
		}
	}()

	// Start application
	if err := application.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := tel.Shutdown(flushCtx); err != nil {
		slog.Error("error flushing telemetry", "error", err)
	}

	slog.Info("server stopped")
}

// runWarm preloads profiles and followers of the fids given as arguments.
func runWarm(args []string) {
	// Parse flags (supports --config, --redis.addr, etc.)
	flags := config.SetupFlags()
	if err := flags.Parse(args); err != nil {
		slog.Error("error parsing flags", "error", err)
		os.Exit(1)
	}

	configPath, _ := flags.GetString("config")

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		slog.Error("error loading config", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Log)

	if flags.NArg() == 0 {
		slog.Error("usage: framecaster warm [flags] FID...")
		os.Exit(2)
	}

	if cfg.Redis.Addr == "" {
		slog.Warn("redis.addr is empty; warmed entries are discarded on exit")
	}

	c := app.NewCache(cfg.Redis)
	if closer, ok := c.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	graph := app.NewGraph(c, cfg.Neynar)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, arg := range flags.Args() {
		fid, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || fid <= 0 {
			slog.Warn("skipping invalid fid", "fid", arg)
			continue
		}
		graph.Warm(ctx, fid)
		slog.Info("warmed", "fid", fid)
	}
}
