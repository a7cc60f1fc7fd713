//go:build linux

package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/AKMHZJ/localserver/internal/app"
	"github.com/AKMHZJ/localserver/pkg/config"
	"github.com/AKMHZJ/localserver/pkg/logger"
	"github.com/AKMHZJ/localserver/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.InitWithLevel("")
		logger.Error("config_load_failed", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	logger.InitWithLevel(cfg.Logging.Level)

	a, err := app.New(cfg, cfgPath, version)
	if err != nil {
		logger.Error("startup_failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		logger.Error("reactor_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}
