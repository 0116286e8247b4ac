package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"marlin/internal/app"
	"marlin/internal/config"
	"marlin/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}
	if err := config.Watch(ctx, *configPath, a.ApplyConfig); err != nil {
		logger.Warnf("config watch disabled: %v", err)
	}

	logger.Infof("marlin started: %d instrument(s), policy %s, %s cycle",
		len(cfg.Symbols), cfg.Policy.SignalPolicy, cfg.Schedule.Interval)
	if err := a.Run(ctx); err != nil {
		logger.Fatalf("run: %v", err)
	}
	logger.Infof("marlin stopped")
}

func setupLogging(cfg config.LogConfig) {
	logger.SetLevel(cfg.Level)
	if cfg.File == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		logger.Warnf("create log directory: %v", err)
		return
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Warnf("open log file %s: %v", cfg.File, err)
		return
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, f))
}
