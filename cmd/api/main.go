package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerline/ledgerline-backend/internal/api"
	"github.com/ledgerline/ledgerline-backend/internal/application/service"
	"github.com/ledgerline/ledgerline-backend/internal/domain/dedup"
	"github.com/ledgerline/ledgerline-backend/internal/domain/matcher"
	"github.com/ledgerline/ledgerline-backend/internal/infrastructure/config"
	"github.com/ledgerline/ledgerline-backend/internal/infrastructure/logging"
	"github.com/ledgerline/ledgerline-backend/internal/infrastructure/storage"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "Configuration file path")
		port       = flag.Int("port", 0, "Port to listen on (overrides config)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	cfg := config.LoadOrEnvWithPath(*configFile)
	if *verbose {
		cfg.Observability.Logging.Level = "debug"
	}
	if *port != 0 {
		cfg.API.Port = *port
	}

	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "api")

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	scorer := matcher.NewScorer(cfg.Matching.ToMatcherConfig())
	reconSvc := service.NewReconcileService(store, scorer, logger)
	detector := dedup.NewDetector(scorer.Config().Similarity)
	importSvc := service.NewImportService(store, reconSvc, detector, cfg.Import.Workers, logger)

	server := api.NewServer(api.Config{
		Port:           cfg.API.Port,
		AllowedOrigins: cfg.API.AllowedOrigins,
	}, store, importSvc, reconSvc, logger)

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-done
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if err := server.Start(); err != nil {
		logger.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
