package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline-backend/internal/domain/dedup"
	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
	"github.com/ledgerline/ledgerline-backend/internal/domain/matcher"
	"github.com/ledgerline/ledgerline-backend/internal/infrastructure/storage"
)

// RowOutcome is the isolated result of processing one imported row.
type RowOutcome struct {
	Index         int                     `json:"index"`
	TransactionID string                  `json:"transaction_id,omitempty"`
	Verdict       ledger.DuplicateVerdict `json:"verdict"`
	Ambiguous     bool                    `json:"ambiguous,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// BatchReport aggregates per-row outcomes of one import run. Ambiguous rows
// are also counted as created: the transaction exists, it just needs a
// manual decision.
type BatchReport struct {
	Created          int          `json:"created"`
	DuplicateSkipped int          `json:"duplicate_skipped"`
	Ambiguous        int          `json:"ambiguous"`
	Errored          int          `json:"errored"`
	Cancelled        bool         `json:"cancelled,omitempty"`
	Outcomes         []RowOutcome `json:"outcomes"`
}

// ImportService runs batch imports: duplicate detection, transaction
// creation, and automatic reconciliation per surviving row.
//
// Rows are scored on a worker pool; no row's verdict depends on another
// row's within the same batch, so the only serialization point is the
// conditional match write in storage.
type ImportService struct {
	repo     storage.Repository
	recon    *ReconcileService
	detector *dedup.Detector
	workers  int
	logger   *slog.Logger
}

// NewImportService creates an import service running on the given number of
// workers.
func NewImportService(repo storage.Repository, recon *ReconcileService, detector *dedup.Detector, workers int, logger *slog.Logger) *ImportService {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportService{
		repo:     repo,
		recon:    recon,
		detector: detector,
		workers:  workers,
		logger:   logger,
	}
}

// ImportRows processes a batch of parsed rows. Cancellation is cooperative
// and checked between rows: everything created before cancellation stays
// valid, there is no rollback. Per-row failures never abort the batch.
func (s *ImportService) ImportRows(ctx context.Context, rows []ledger.ParsedRow) (*BatchReport, error) {
	jobs := make(chan int)
	results := make(chan RowOutcome, len(rows))

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results <- s.processRow(ctx, idx, rows[idx])
			}
		}()
	}

	cancelled := false
feed:
	for i := range rows {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		select {
		case <-ctx.Done():
			cancelled = true
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	report := &BatchReport{Cancelled: cancelled}
	for outcome := range results {
		report.Outcomes = append(report.Outcomes, outcome)
		switch {
		case outcome.Error != "":
			report.Errored++
		case outcome.Verdict.IsDuplicate():
			report.DuplicateSkipped++
		default:
			report.Created++
			if outcome.Ambiguous {
				report.Ambiguous++
			}
		}
	}
	sort.Slice(report.Outcomes, func(i, j int) bool {
		return report.Outcomes[i].Index < report.Outcomes[j].Index
	})

	s.logger.Info("import batch finished",
		"rows", len(rows),
		"created", report.Created,
		"duplicates", report.DuplicateSkipped,
		"ambiguous", report.Ambiguous,
		"errored", report.Errored,
		"cancelled", cancelled)
	return report, nil
}

// processRow handles one row end to end. Errors are captured in the
// outcome, never propagated: row isolation is the batch contract.
func (s *ImportService) processRow(ctx context.Context, idx int, row ledger.ParsedRow) RowOutcome {
	outcome := RowOutcome{Index: idx}

	if err := ctx.Err(); err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	candidates, err := s.repo.DuplicateCandidates(row.AccountID, row.Date, row.Amount, row.Kind)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Verdict = s.detector.Check(row, candidates)
	if outcome.Verdict.IsDuplicate() {
		// Skipped, but attributed: the report carries the existing id so
		// the user can audit the decision.
		s.logger.Debug("duplicate row skipped",
			"row", idx,
			"verdict", string(outcome.Verdict.Kind),
			"existing_id", outcome.Verdict.ExistingID)
		return outcome
	}

	tx := &ledger.Transaction{
		ID:          uuid.NewString(),
		AccountID:   row.AccountID,
		Date:        ledger.Day(row.Date),
		Description: row.Description,
		Amount:      row.Amount,
		Currency:    row.Currency,
		Kind:        row.Kind,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateTransaction(tx); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.TransactionID = tx.ID

	if _, err := s.recon.Evaluate(ctx, tx.ID); err != nil {
		if _, ok := err.(*matcher.AmbiguityError); ok {
			outcome.Ambiguous = true
			return outcome
		}
		// The transaction exists; only reconciliation failed.
		outcome.Error = err.Error()
	}
	return outcome
}
