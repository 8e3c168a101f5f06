// ====================================
// File: cmd/curvetrack/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/sketchxpress/curvetrack/internal/config"
	"github.com/sketchxpress/curvetrack/internal/logger"
	"github.com/sketchxpress/curvetrack/internal/tracker"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	if cfg.LogFile != "" {
		logCfg.LogFile = cfg.LogFile
	}

	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting curvetrack",
		zap.String("program", cfg.ProgramAddress),
		zap.String("pool", cfg.PoolAddress))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := tracker.NewRunner(cfg, log.Logger)
	if err := runner.Run(ctx); err != nil {
		log.Error("Tracker stopped with error", zap.Error(err))
		os.Exit(1)
	}
}
