package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func day(dd int) time.Time {
	return time.Date(2026, 3, dd, 0, 0, 0, 0, time.UTC)
}

func makeTx(id string, date time.Time) *ledger.Transaction {
	return &ledger.Transaction{
		ID:          id,
		AccountID:   "acct1",
		Date:        date,
		Description: "NETFLIX.COM",
		Amount:      decimal.RequireFromString("-15.99"),
		Currency:    "USD",
		Kind:        ledger.KindExpense,
		CreatedAt:   time.Now().UTC(),
	}
}

func makeMatch(id, txID, seriesID string, date time.Time) *ledger.ReconciliationMatch {
	conf := 0.93
	return &ledger.ReconciliationMatch{
		ID:            id,
		TransactionID: txID,
		SeriesID:      seriesID,
		ScheduledDate: date,
		Source:        ledger.SourceAuto,
		Status:        ledger.StatusActive,
		Confidence:    &conf,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestStorage_TransactionRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	tx := makeTx("tx1", day(1))

	require.NoError(t, s.CreateTransaction(tx))
	got, err := s.GetTransaction("tx1")

	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	assert.Equal(t, tx.AccountID, got.AccountID)
	assert.True(t, got.Date.Equal(day(1)), "date %v", got.Date)
	assert.Equal(t, tx.Description, got.Description)
	assert.True(t, got.Amount.Equal(tx.Amount), "amount %s", got.Amount)
	assert.Equal(t, ledger.KindExpense, got.Kind)
}

func TestStorage_GetTransaction_NotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetTransaction("missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_DuplicateCandidates_WindowAndAmount(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.CreateTransaction(makeTx("same-day", day(2))))
	require.NoError(t, s.CreateTransaction(makeTx("adjacent", day(3))))
	require.NoError(t, s.CreateTransaction(makeTx("far", day(7))))
	other := makeTx("wrong-amount", day(2))
	other.Amount = decimal.RequireFromString("-20.00")
	require.NoError(t, s.CreateTransaction(other))

	got, err := s.DuplicateCandidates("acct1", day(2), decimal.RequireFromString("-15.99"), ledger.KindExpense)

	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, tx := range got {
		ids[i] = tx.ID
	}
	assert.ElementsMatch(t, []string{"same-day", "adjacent"}, ids)
}

func TestStorage_ListTransactions_NewestFirst(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.CreateTransaction(makeTx("old", day(1))))
	require.NoError(t, s.CreateTransaction(makeTx("new", day(5))))

	got, err := s.ListTransactions("acct1", 10)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "old", got[1].ID)
}

func TestStorage_InstanceUpsertAndGet(t *testing.T) {
	s := newTestStorage(t)
	inst := ledger.RecurringInstance{
		SeriesID:            "rent",
		ScheduledDate:       day(1),
		ExpectedDescription: "Rent to Landlord",
		ExpectedAmount:      decimal.RequireFromString("1800"),
	}

	require.NoError(t, s.UpsertInstance(inst))

	// Upsert with a refreshed amount replaces the snapshot.
	inst.ExpectedAmount = decimal.RequireFromString("1850")
	require.NoError(t, s.UpsertInstance(inst))

	got, err := s.GetInstance("rent", day(1))
	require.NoError(t, err)
	assert.True(t, got.ExpectedAmount.Equal(decimal.RequireFromString("1850")))
}

func TestStorage_UnmatchedInstances_ExcludesActivelyMatched(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.UpsertInstance(ledger.RecurringInstance{
		SeriesID: "rent", ScheduledDate: day(1),
		ExpectedDescription: "Rent", ExpectedAmount: decimal.RequireFromString("1800"),
	}))
	require.NoError(t, s.UpsertInstance(ledger.RecurringInstance{
		SeriesID: "netflix", ScheduledDate: day(2),
		ExpectedDescription: "Netflix", ExpectedAmount: decimal.RequireFromString("15.99"),
	}))
	require.NoError(t, s.CreateTransaction(makeTx("tx1", day(1))))
	require.NoError(t, s.CreateMatch(makeMatch("m1", "tx1", "rent", day(1))))

	got, err := s.UnmatchedInstancesInWindow(day(1), day(5))

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "netflix", got[0].SeriesID)

	// Rejecting the match frees the instance again.
	require.NoError(t, s.RejectMatch("m1"))
	got, err = s.UnmatchedInstancesInWindow(day(1), day(5))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStorage_UnmatchedInstancesForSeries(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.UpsertInstance(ledger.RecurringInstance{
		SeriesID: "rent", ScheduledDate: day(1),
		ExpectedDescription: "Rent", ExpectedAmount: decimal.RequireFromString("1800"),
	}))
	require.NoError(t, s.UpsertInstance(ledger.RecurringInstance{
		SeriesID: "netflix", ScheduledDate: day(1),
		ExpectedDescription: "Netflix", ExpectedAmount: decimal.RequireFromString("15.99"),
	}))

	got, err := s.UnmatchedInstancesForSeries("rent", day(1), day(5))

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rent", got[0].SeriesID)
}

func TestStorage_CreateMatch_SecondActivePerTransactionFails(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.CreateTransaction(makeTx("tx1", day(1))))
	require.NoError(t, s.CreateMatch(makeMatch("m1", "tx1", "rent", day(1))))

	err := s.CreateMatch(makeMatch("m2", "tx1", "netflix", day(2)))

	assert.ErrorIs(t, err, ErrActiveMatchExists)
}

func TestStorage_CreateMatch_SecondActivePerInstanceFails(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.CreateTransaction(makeTx("tx1", day(1))))
	require.NoError(t, s.CreateTransaction(makeTx("tx2", day(1))))
	require.NoError(t, s.CreateMatch(makeMatch("m1", "tx1", "rent", day(1))))

	err := s.CreateMatch(makeMatch("m2", "tx2", "rent", day(1)))

	assert.ErrorIs(t, err, ErrActiveMatchExists)
}

func TestStorage_RejectMatch_FreesBothSides(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.CreateTransaction(makeTx("tx1", day(1))))
	require.NoError(t, s.CreateMatch(makeMatch("m1", "tx1", "rent", day(1))))

	require.NoError(t, s.RejectMatch("m1"))

	// Both sides are free for a new active match.
	require.NoError(t, s.CreateMatch(makeMatch("m2", "tx1", "rent", day(1))))

	got, err := s.GetMatch("m1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusRejected, got.Status)
}

func TestStorage_ActiveMatchLookups(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.CreateTransaction(makeTx("tx1", day(1))))
	require.NoError(t, s.CreateMatch(makeMatch("m1", "tx1", "rent", day(1))))

	byTx, err := s.ActiveMatchByTransaction("tx1")
	require.NoError(t, err)
	require.NotNil(t, byTx)
	assert.Equal(t, "m1", byTx.ID)
	require.NotNil(t, byTx.Confidence)
	assert.InDelta(t, 0.93, *byTx.Confidence, 1e-9)

	byInst, err := s.ActiveMatchByInstance("rent", day(1))
	require.NoError(t, err)
	require.NotNil(t, byInst)
	assert.Equal(t, "m1", byInst.ID)

	none, err := s.ActiveMatchByTransaction("other")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStorage_PatternCRUD(t *testing.T) {
	s := newTestStorage(t)
	p := &ledger.ImportPattern{ID: "p1", SeriesID: "rent", Pattern: "rent*landlord"}

	require.NoError(t, s.CreatePattern(p))

	got, err := s.ListPatterns()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rent*landlord", got[0].Pattern)

	require.NoError(t, s.DeletePattern("p1"))
	got, err = s.ListPatterns()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMockRepository_MatchesStorageBehavior(t *testing.T) {
	// The mock must enforce the same active-match invariant as SQLite so
	// service tests exercise real failure paths.
	m := NewMockRepository()
	require.NoError(t, m.CreateTransaction(makeTx("tx1", day(1))))
	require.NoError(t, m.CreateMatch(makeMatch("m1", "tx1", "rent", day(1))))

	err := m.CreateMatch(makeMatch("m2", "tx1", "netflix", day(2)))
	assert.ErrorIs(t, err, ErrActiveMatchExists)

	require.NoError(t, m.RejectMatch("m1"))
	assert.NoError(t, m.CreateMatch(makeMatch("m3", "tx1", "rent", day(1))))
}
