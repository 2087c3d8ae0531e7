// Command wagerd serves the wager engine over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/R3E-Network/wager_layer/internal/app/runtime"
	"github.com/R3E-Network/wager_layer/internal/config"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration")
	envFile := flag.String("env", ".env", "Optional .env file with WAGER_* overrides")
	flag.Parse()

	if v := os.Getenv("WAGER_CONFIG"); v != "" && *configPath == "" {
		*configPath = v
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wagerd: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging).Named("wagerd")
	log.WithField("storage", cfg.Storage.Driver).
		WithField("ledger", cfg.Ledger.Driver).
		WithField("chain", cfg.Chain.Source).
		WithField("provider", cfg.Protocol.ActiveProvider).
		Info("starting wagerd")

	application, err := runtime.NewApplication(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("initialise application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := application.Run(ctx)
	if runErr != nil {
		log.WithError(runErr).Error("server stopped")
	}

	log.Info("shutting down")
	if err := application.Shutdown(context.Background()); err != nil {
		log.WithError(err).Error("shutdown")
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
