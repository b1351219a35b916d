// Package service orchestrates the matching engine over storage: duplicate
// detection during import, automatic reconciliation, and the manual link
// registry that always outranks it.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
	"github.com/ledgerline/ledgerline-backend/internal/domain/matcher"
	"github.com/ledgerline/ledgerline-backend/internal/domain/pattern"
	"github.com/ledgerline/ledgerline-backend/internal/infrastructure/storage"
)

// InvalidLinkError reports a manual link attempt that would displace an
// existing manual match. The caller must unlink explicitly first; only auto
// matches are displaced silently, since the new manual action outranks them.
type InvalidLinkError struct {
	TransactionID string
	SeriesID      string
	Reason        string
}

func (e *InvalidLinkError) Error() string {
	return fmt.Sprintf("cannot link transaction %s to series %s: %s",
		e.TransactionID, e.SeriesID, e.Reason)
}

// ReconcileService is the decision entry point for linking transactions to
// recurring instances. It runs the pattern/candidate/score/ambiguity
// pipeline and owns the manual link registry.
type ReconcileService struct {
	repo   storage.Repository
	scorer *matcher.Scorer
	logger *slog.Logger
}

// NewReconcileService creates a reconcile service.
func NewReconcileService(repo storage.Repository, scorer *matcher.Scorer, logger *slog.Logger) *ReconcileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{repo: repo, scorer: scorer, logger: logger}
}

// Evaluate runs automatic reconciliation for one transaction.
//
// A manual match is never touched: it is returned as-is with no evaluation.
// An existing auto match is re-evaluated (the transaction may have been
// edited since it was written). Returns nil with no error when the
// transaction stays unmatched; a *matcher.AmbiguityError when candidates
// tie.
func (s *ReconcileService) Evaluate(ctx context.Context, transactionID string) (*ledger.ReconciliationMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx, err := s.repo.GetTransaction(transactionID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ActiveMatchByTransaction(transactionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Source == ledger.SourceManual {
			return existing, nil
		}
		// Re-trigger on an auto-matched transaction: release the old
		// verdict first so its instance is back in the candidate pool,
		// then decide fresh.
		if err := s.repo.RejectMatch(existing.ID); err != nil {
			return nil, err
		}
	}

	winner, confidence, err := s.decide(*tx)
	if err != nil {
		// No decision was reached (ambiguous candidates, or storage
		// trouble). Reinstate the prior verdict rather than leaving the
		// transaction stripped of it.
		if existing != nil && existing.Source == ledger.SourceAuto {
			if rerr := s.reinstateMatch(existing); rerr != nil {
				s.logger.Error("failed to reinstate prior match",
					"transaction_id", transactionID,
					"match_id", existing.ID,
					"error", rerr)
			}
		}
		return nil, err
	}
	if winner == nil {
		s.logger.Debug("transaction left unmatched", "transaction_id", transactionID)
		return nil, nil
	}

	match := &ledger.ReconciliationMatch{
		ID:            uuid.NewString(),
		TransactionID: tx.ID,
		SeriesID:      winner.SeriesID,
		ScheduledDate: ledger.Day(winner.ScheduledDate),
		Source:        ledger.SourceAuto,
		Status:        ledger.StatusActive,
		Confidence:    &confidence,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateMatch(match); err != nil {
		if err == storage.ErrActiveMatchExists {
			// Lost the conditional write to a concurrent evaluation; the
			// transaction simply stays unmatched this round.
			s.logger.Warn("instance claimed concurrently, leaving unmatched",
				"transaction_id", tx.ID, "series_id", winner.SeriesID)
			return nil, nil
		}
		return nil, err
	}

	s.logger.Info("auto match created",
		"transaction_id", tx.ID,
		"series_id", winner.SeriesID,
		"scheduled_date", winner.ScheduledDate.Format("2006-01-02"),
		"confidence", confidence)
	return match, nil
}

// reinstateMatch puts a released auto verdict back after a fresh decision
// failed. The released row stays rejected; the verdict returns under a new
// ID so the audit trail keeps both.
func (s *ReconcileService) reinstateMatch(old *ledger.ReconciliationMatch) error {
	return s.repo.CreateMatch(&ledger.ReconciliationMatch{
		ID:            uuid.NewString(),
		TransactionID: old.TransactionID,
		SeriesID:      old.SeriesID,
		ScheduledDate: old.ScheduledDate,
		Source:        old.Source,
		Status:        ledger.StatusActive,
		Confidence:    old.Confidence,
		CreatedAt:     time.Now().UTC(),
	})
}

// decide picks the winning recurring instance for tx, or nil. Pattern hits
// bypass scoring with confidence 1.0.
func (s *ReconcileService) decide(tx ledger.Transaction) (*ledger.RecurringInstance, float64, error) {
	from, to := s.window(tx.Date)

	patterns, err := s.repo.ListPatterns()
	if err != nil {
		return nil, 0, err
	}
	hit, err := pattern.Match(tx.Description, patterns)
	if err != nil {
		return nil, 0, err
	}
	if hit != nil {
		instances, err := s.repo.UnmatchedInstancesForSeries(hit.SeriesID, from, to)
		if err != nil {
			return nil, 0, err
		}
		if inst := nearestInstance(instances, tx.Date); inst != nil {
			return inst, 1.0, nil
		}
		// Pattern names a series with no free instance in the window;
		// nothing to link against.
		return nil, 0, nil
	}

	instances, err := s.repo.UnmatchedInstancesInWindow(from, to)
	if err != nil {
		return nil, 0, err
	}
	winner, _, err := s.scorer.Evaluate(tx, instances)
	if err != nil || winner == nil {
		return nil, 0, err
	}
	return &winner.Instance, winner.Confidence, nil
}

// AmbiguityReport returns the retained candidates for a transaction so the
// UI can drive the manual link workflow. Empty when a pattern claims the
// transaction outright.
func (s *ReconcileService) AmbiguityReport(ctx context.Context, transactionID string) (*ledger.AmbiguityReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx, err := s.repo.GetTransaction(transactionID)
	if err != nil {
		return nil, err
	}

	patterns, err := s.repo.ListPatterns()
	if err != nil {
		return nil, err
	}
	if hit, err := pattern.Match(tx.Description, patterns); err != nil {
		return nil, err
	} else if hit != nil {
		report := matcher.Report(transactionID, nil)
		return &report, nil
	}

	from, to := s.window(tx.Date)
	instances, err := s.repo.UnmatchedInstancesInWindow(from, to)
	if err != nil {
		return nil, err
	}
	_, retained, err := s.scorer.Evaluate(*tx, instances)
	if err != nil {
		// Ambiguity is exactly what this report is for.
		if _, ok := err.(*matcher.AmbiguityError); !ok {
			return nil, err
		}
	}
	report := matcher.Report(transactionID, retained)
	return &report, nil
}

// Link records an explicit user decision connecting a transaction to a
// recurring instance. Prior active auto matches on either side are rejected;
// a prior manual match on either side must be unlinked first.
func (s *ReconcileService) Link(ctx context.Context, transactionID, seriesID string, scheduledDate time.Time) (*ledger.ReconciliationMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetTransaction(transactionID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetInstance(seriesID, scheduledDate); err != nil {
		if err == storage.ErrNotFound {
			return nil, &InvalidLinkError{
				TransactionID: transactionID,
				SeriesID:      seriesID,
				Reason:        "unknown recurring instance",
			}
		}
		return nil, err
	}

	txSide, err := s.repo.ActiveMatchByTransaction(transactionID)
	if err != nil {
		return nil, err
	}
	instSide, err := s.repo.ActiveMatchByInstance(seriesID, scheduledDate)
	if err != nil {
		return nil, err
	}
	for _, prior := range []*ledger.ReconciliationMatch{txSide, instSide} {
		if prior == nil {
			continue
		}
		if prior.Source == ledger.SourceManual {
			return nil, &InvalidLinkError{
				TransactionID: transactionID,
				SeriesID:      seriesID,
				Reason:        "side already manually linked; unlink first",
			}
		}
		if err := s.repo.RejectMatch(prior.ID); err != nil {
			return nil, err
		}
	}

	match := &ledger.ReconciliationMatch{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		SeriesID:      seriesID,
		ScheduledDate: ledger.Day(scheduledDate),
		Source:        ledger.SourceManual,
		Status:        ledger.StatusActive,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateMatch(match); err != nil {
		if err == storage.ErrActiveMatchExists {
			return nil, &InvalidLinkError{
				TransactionID: transactionID,
				SeriesID:      seriesID,
				Reason:        "active match created concurrently; unlink first",
			}
		}
		return nil, err
	}

	s.logger.Info("manual link created",
		"transaction_id", transactionID, "series_id", seriesID)
	return match, nil
}

// Unlink rejects a match, freeing both sides for future evaluation.
func (s *ReconcileService) Unlink(ctx context.Context, matchID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.repo.RejectMatch(matchID); err != nil {
		return err
	}
	s.logger.Info("match unlinked", "match_id", matchID)
	return nil
}

// AddPattern validates and stores an import pattern for a series. Overlap
// with another series' pattern is a configuration error, caught here at
// write time rather than at match time.
func (s *ReconcileService) AddPattern(ctx context.Context, seriesID, patternText string) (*ledger.ImportPattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListPatterns()
	if err != nil {
		return nil, err
	}
	candidate := ledger.ImportPattern{
		ID:       uuid.NewString(),
		SeriesID: seriesID,
		Pattern:  patternText,
	}
	if err := pattern.Validate(candidate, existing); err != nil {
		return nil, err
	}
	if err := s.repo.CreatePattern(&candidate); err != nil {
		return nil, err
	}
	return &candidate, nil
}

// window returns the candidate date window centered on a transaction date.
func (s *ReconcileService) window(date time.Time) (time.Time, time.Time) {
	days := s.scorer.Config().DateWindowDays
	day := ledger.Day(date)
	return day.AddDate(0, 0, -days), day.AddDate(0, 0, days)
}

// nearestInstance picks the instance scheduled closest to date, earliest
// first on ties.
func nearestInstance(instances []ledger.RecurringInstance, date time.Time) *ledger.RecurringInstance {
	var best *ledger.RecurringInstance
	bestDays := 0
	for i := range instances {
		days := ledger.DaysBetween(instances[i].ScheduledDate, date)
		if best == nil || days < bestDays {
			best = &instances[i]
			bestDays = days
		}
	}
	return best
}
