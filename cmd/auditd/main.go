package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/app"
	"github.com/JakeFAU/prelaunch-audit/internal/config"
	"github.com/JakeFAU/prelaunch-audit/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("application init failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		logger.Error("application stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
