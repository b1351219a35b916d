package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
)

func day(yy int, mm time.Month, dd int) time.Time {
	return time.Date(yy, mm, dd, 0, 0, 0, 0, time.UTC)
}

func makeTx(id, desc string, amount float64, date time.Time) ledger.Transaction {
	return ledger.Transaction{
		ID:          id,
		AccountID:   "acct1",
		Date:        date,
		Description: desc,
		Amount:      decimal.NewFromFloat(amount),
		Kind:        ledger.KindExpense,
	}
}

func makeInstance(seriesID, desc string, amount float64, date time.Time) ledger.RecurringInstance {
	return ledger.RecurringInstance{
		SeriesID:            seriesID,
		ScheduledDate:       date,
		ExpectedDescription: desc,
		ExpectedAmount:      decimal.NewFromFloat(amount),
	}
}

func TestScore_PerfectMatch(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	tx := makeTx("tx1", "NETFLIX.COM", -15.99, day(2026, 3, 1))
	inst := makeInstance("netflix", "Netflix", 15.99, day(2026, 3, 1))

	score := scorer.Score(tx, inst)

	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestScore_EmptyDescriptionsNotPerfect(t *testing.T) {
	// Two descriptions that normalize to nothing must not count as a
	// textual match; only amount and date can contribute.
	scorer := NewScorer(DefaultConfig())
	tx := makeTx("tx1", "", -15.99, day(2026, 3, 1))
	inst := makeInstance("netflix", "POS PURCHASE 11/07", 15.99, day(2026, 3, 1))

	score := scorer.Score(tx, inst)

	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestScore_SignFlippedAmountsEqual(t *testing.T) {
	// Transfer legs carry opposite signs; absolute values compare equal.
	scorer := NewScorer(DefaultConfig())
	tx := makeTx("tx1", "SAVINGS TRANSFER", -500.00, day(2026, 3, 1))
	inst := makeInstance("savings", "Savings Transfer", 500.00, day(2026, 3, 1))

	score := scorer.Score(tx, inst)

	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestScore_DateDecay(t *testing.T) {
	// Window of 3 days: score 1.0 on the day, 2/3 at one day off,
	// 1/3 at two, 0 at three.
	scorer := NewScorer(DefaultConfig())
	inst := makeInstance("rent", "Rent", 1800, day(2026, 3, 1))

	exact := scorer.Score(makeTx("t0", "Rent", -1800, day(2026, 3, 1)), inst)
	oneOff := scorer.Score(makeTx("t1", "Rent", -1800, day(2026, 3, 2)), inst)
	twoOff := scorer.Score(makeTx("t2", "Rent", -1800, day(2026, 3, 3)), inst)
	edge := scorer.Score(makeTx("t3", "Rent", -1800, day(2026, 3, 4)), inst)

	assert.InDelta(t, 1.0, exact, 1e-9)
	assert.InDelta(t, 0.5+0.3+0.2*(2.0/3.0), oneOff, 1e-9)
	assert.InDelta(t, 0.5+0.3+0.2*(1.0/3.0), twoOff, 1e-9)
	assert.InDelta(t, 0.5+0.3, edge, 1e-9)
}

func TestScore_AmountDecay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AmountTolerancePct = 0.5
	scorer := NewScorer(cfg)
	inst := makeInstance("power", "City Power", 100, day(2026, 3, 1))

	// 25% off with a 50% tolerance ceiling: amount signal is 0.5.
	score := scorer.Score(makeTx("t1", "City Power", -125, day(2026, 3, 1)), inst)
	assert.InDelta(t, 0.5+0.3*0.5+0.2, score, 1e-9)

	// Past the ceiling the amount signal bottoms out at zero.
	score = scorer.Score(makeTx("t2", "City Power", -200, day(2026, 3, 1)), inst)
	assert.InDelta(t, 0.5+0.2, score, 1e-9)
}

func TestScore_UnrelatedDescriptionZero(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	tx := makeTx("tx1", "STARBUCKS", -15.99, day(2026, 3, 1))
	inst := makeInstance("netflix", "Netflix", 15.99, day(2026, 3, 1))

	score := scorer.Score(tx, inst)

	// Amount and date still contribute; description does not.
	assert.InDelta(t, 0.3+0.2, score, 1e-9)
}

func TestEvaluate_SingleWinner(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	tx := makeTx("tx1", "NETFLIX.COM", -15.99, day(2026, 3, 1))
	instances := []ledger.RecurringInstance{
		makeInstance("netflix", "Netflix", 15.99, day(2026, 3, 1)),
		makeInstance("hulu", "Hulu", 17.99, day(2026, 3, 1)),
	}

	winner, retained, err := scorer.Evaluate(tx, instances)

	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "netflix", winner.Instance.SeriesID)
	assert.InDelta(t, 1.0, winner.Confidence, 1e-9)
	require.NotEmpty(t, retained)
	assert.Equal(t, "netflix", retained[0].Instance.SeriesID)
}

func TestEvaluate_NothingAccepted(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	tx := makeTx("tx1", "STARBUCKS", -6.45, day(2026, 3, 1))
	instances := []ledger.RecurringInstance{
		makeInstance("rent", "Rent to Landlord", 1800, day(2026, 3, 1)),
	}

	winner, _, err := scorer.Evaluate(tx, instances)

	require.NoError(t, err)
	assert.Nil(t, winner)
}

func TestEvaluate_OutsideWindowNeverCandidate(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	tx := makeTx("tx1", "NETFLIX.COM", -15.99, day(2026, 3, 10))
	instances := []ledger.RecurringInstance{
		makeInstance("netflix", "Netflix", 15.99, day(2026, 3, 1)),
	}

	winner, retained, err := scorer.Evaluate(tx, instances)

	require.NoError(t, err)
	assert.Nil(t, winner)
	assert.Empty(t, retained)
}

func TestPickWinner_TieWithinEpsilon_Ambiguous(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	sorted := []Candidate{
		{Instance: makeInstance("rent-a", "Rent", 1800, day(2026, 3, 1)), Confidence: 0.81},
		{Instance: makeInstance("rent-b", "Rent", 1800, day(2026, 3, 2)), Confidence: 0.80},
	}

	winner, err := scorer.pickWinner("tx1", sorted)

	assert.Nil(t, winner)
	var ambErr *AmbiguityError
	require.ErrorAs(t, err, &ambErr)
	assert.Equal(t, "tx1", ambErr.TransactionID)
	assert.Len(t, ambErr.Candidates, 2)
}

func TestPickWinner_ClearGap_TopWins(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	sorted := []Candidate{
		{Instance: makeInstance("rent-a", "Rent", 1800, day(2026, 3, 1)), Confidence: 0.95},
		{Instance: makeInstance("rent-b", "Rent", 1800, day(2026, 3, 2)), Confidence: 0.85},
	}

	winner, err := scorer.pickWinner("tx1", sorted)

	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "rent-a", winner.Instance.SeriesID)
}

func TestPickWinner_BelowAcceptIgnoredForTies(t *testing.T) {
	// A near-tie below the accept threshold does not make the top ambiguous.
	scorer := NewScorer(DefaultConfig())
	sorted := []Candidate{
		{Instance: makeInstance("rent-a", "Rent", 1800, day(2026, 3, 1)), Confidence: 0.90},
		{Instance: makeInstance("rent-b", "Rent", 1800, day(2026, 3, 2)), Confidence: 0.79},
	}

	winner, err := scorer.pickWinner("tx1", sorted)

	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "rent-a", winner.Instance.SeriesID)
}

func TestReport(t *testing.T) {
	candidates := []Candidate{
		{Instance: makeInstance("rent-a", "Rent", 1800, day(2026, 3, 1)), Confidence: 0.81},
		{Instance: makeInstance("rent-b", "Rent", 1800, day(2026, 3, 2)), Confidence: 0.80},
	}

	report := Report("tx1", candidates)

	assert.Equal(t, "tx1", report.TransactionID)
	require.Len(t, report.Candidates, 2)
	assert.Equal(t, "rent-a", report.Candidates[0].SeriesID)
	assert.InDelta(t, 0.81, report.Candidates[0].Confidence, 1e-9)
}
