package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline-backend/internal/domain/dedup"
	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
	"github.com/ledgerline/ledgerline-backend/internal/infrastructure/storage"
)

func newImport(repo storage.Repository, workers int) *ImportService {
	recon := newRecon(repo)
	detector := dedup.NewDetector(recon.scorer.Config().Similarity)
	return NewImportService(repo, recon, detector, workers, nil)
}

func makeRow(desc string, amount float64, date time.Time) ledger.ParsedRow {
	return ledger.ParsedRow{
		Date:        date,
		Description: desc,
		Amount:      decimal.NewFromFloat(amount),
		Currency:    "USD",
		Kind:        ledger.KindExpense,
		AccountID:   "acct1",
	}
}

func TestImportRows_CreatesAndReconciles(t *testing.T) {
	repo := storage.NewMockRepository()
	seedInstance(t, repo, "netflix", "Netflix", 15.99, day(1))
	svc := newImport(repo, 2)

	rows := []ledger.ParsedRow{
		makeRow("NETFLIX.COM", -15.99, day(1)),
		makeRow("STARBUCKS", -6.45, day(1)),
	}

	report, err := svc.ImportRows(context.Background(), rows)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 0, report.DuplicateSkipped)
	assert.Equal(t, 0, report.Errored)
	assert.False(t, report.Cancelled)
	require.Len(t, report.Outcomes, 2)

	// The Netflix row got auto-matched during import.
	match, err := repo.ActiveMatchByTransaction(report.Outcomes[0].TransactionID)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "netflix", match.SeriesID)
}

func TestImportRows_SkipsDuplicates(t *testing.T) {
	repo := storage.NewMockRepository()
	seedTransaction(t, repo, "existing", "NETFLIX.COM", -15.99, day(1))
	svc := newImport(repo, 2)

	report, err := svc.ImportRows(context.Background(), []ledger.ParsedRow{
		makeRow("NETFLIX.COM", -15.99, day(1)),
	})

	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.DuplicateSkipped)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, ledger.VerdictExactDuplicate, report.Outcomes[0].Verdict.Kind)
	assert.Equal(t, "existing", report.Outcomes[0].Verdict.ExistingID)
	assert.Empty(t, report.Outcomes[0].TransactionID)
}

func TestImportRows_AmbiguousRowStillCreated(t *testing.T) {
	repo := storage.NewMockRepository()
	seedInstance(t, repo, "rent-a", "Rent Payment", 1800, day(1))
	seedInstance(t, repo, "rent-b", "Rent Payment", 1800, day(3))
	svc := newImport(repo, 1)

	report, err := svc.ImportRows(context.Background(), []ledger.ParsedRow{
		makeRow("Rent Payment", -1800, day(2)),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Ambiguous)
	require.Len(t, report.Outcomes, 1)

	outcome := report.Outcomes[0]
	assert.True(t, outcome.Ambiguous)
	require.NotEmpty(t, outcome.TransactionID)

	// Transaction exists but carries no match.
	_, err = repo.GetTransaction(outcome.TransactionID)
	require.NoError(t, err)
	match, err := repo.ActiveMatchByTransaction(outcome.TransactionID)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestImportRows_RowFailureDoesNotAbortBatch(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.CreateTransactionErr = errors.New("disk full")
	svc := newImport(repo, 2)

	report, err := svc.ImportRows(context.Background(), []ledger.ParsedRow{
		makeRow("NETFLIX.COM", -15.99, day(1)),
		makeRow("STARBUCKS", -6.45, day(1)),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, report.Errored)
	assert.Equal(t, 0, report.Created)
	for _, outcome := range report.Outcomes {
		assert.Contains(t, outcome.Error, "disk full")
	}
}

func TestImportRows_CancelledBeforeStart(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newImport(repo, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := svc.ImportRows(ctx, []ledger.ParsedRow{
		makeRow("NETFLIX.COM", -15.99, day(1)),
		makeRow("STARBUCKS", -6.45, day(1)),
	})

	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	assert.Equal(t, 0, report.Created)
	assert.Empty(t, report.Outcomes)
}

func TestImportRows_OutcomesOrderedByIndex(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newImport(repo, 4)

	rows := []ledger.ParsedRow{
		makeRow("ALPHA", -1, day(1)),
		makeRow("BRAVO", -2, day(1)),
		makeRow("CHARLIE", -3, day(1)),
		makeRow("DELTA", -4, day(1)),
		makeRow("ECHO", -5, day(1)),
	}

	report, err := svc.ImportRows(context.Background(), rows)

	require.NoError(t, err)
	require.Len(t, report.Outcomes, len(rows))
	for i, outcome := range report.Outcomes {
		assert.Equal(t, i, outcome.Index)
	}
}

func TestImportRows_EmptyBatch(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newImport(repo, 2)

	report, err := svc.ImportRows(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Empty(t, report.Outcomes)
}
