package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ledgerline/ledgerline-backend/internal/application/service"
	"github.com/ledgerline/ledgerline-backend/internal/domain/dedup"
	"github.com/ledgerline/ledgerline-backend/internal/domain/matcher"
	"github.com/ledgerline/ledgerline-backend/internal/importer"
	"github.com/ledgerline/ledgerline-backend/internal/infrastructure/config"
	"github.com/ledgerline/ledgerline-backend/internal/infrastructure/logging"
	"github.com/ledgerline/ledgerline-backend/internal/infrastructure/storage"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "Configuration file path")
		file       = flag.String("file", "", "CSV file to import (required)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: import -file transactions.csv [-config config.yaml]")
		os.Exit(2)
	}

	cfg := config.LoadOrEnvWithPath(*configFile)
	if *verbose {
		cfg.Observability.Logging.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "import")

	rows, err := importer.ReadFile(*file)
	if err != nil {
		logger.Error("failed to read import file", slog.String("error", err.Error()))
		os.Exit(1)
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := importSvc.ImportRows(ctx, rows)
	if err != nil {
		logger.Error("import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("import complete",
		slog.Int("rows", len(rows)),
		slog.Int("created", report.Created),
		slog.Int("duplicates_skipped", report.DuplicateSkipped),
		slog.Int("ambiguous", report.Ambiguous),
		slog.Int("errored", report.Errored),
		slog.Bool("cancelled", report.Cancelled))

	for _, o := range report.Outcomes {
		if o.Error != "" {
			logger.Warn("row failed", slog.Int("row", o.Index+1), slog.String("error", o.Error))
		}
	}

	if report.Errored > 0 {
		os.Exit(1)
	}
}
