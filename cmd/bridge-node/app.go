package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/urands/bridge/internal/statusfile"
	"github.com/urands/bridge/pkg/bridge"
	"github.com/urands/bridge/pkg/config"
	"github.com/urands/bridge/pkg/observability"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	statusPath := opts.StatusPath
	if statusPath == "" {
		statusPath = statusfile.DefaultPath(".", cfg.InstanceName)
	}

	logger.Info("bridge-node starting", zap.String("mode", cfg.Mode), zap.String("instance", cfg.InstanceName))
	logger.Debug("effective configuration", zap.Any("config", cfg))

	core, err := bridge.New(*cfg, logger, statusPath)
	if err != nil {
		logger.Error("failed to build bridge", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := core.Start(ctx); err != nil {
		logger.Error("failed to start bridge", zap.Error(err))
		return 1
	}

	logger.Info("bridge-node running; press Ctrl+C to exit")
	<-ctx.Done()

	logger.Info("bridge-node shutting down")
	core.Stop()
	return 0
}
