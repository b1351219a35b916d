// Package matcher computes weighted confidence scores for transaction /
// recurring-instance pairs and resolves them into at most one automatic
// match. Ambiguity is never broken by an arbitrary tie-break: when two
// candidates are statistically indistinguishable the evaluation fails and
// the decision is left to the user.
package matcher

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
	"github.com/ledgerline/ledgerline-backend/internal/domain/normalize"
	"github.com/ledgerline/ledgerline-backend/internal/domain/similarity"
)

// Candidate is a recurring instance with its confidence for one transaction.
type Candidate struct {
	Instance   ledger.RecurringInstance
	Confidence float64
}

// AmbiguityError is returned when two or more candidates clear the accept
// threshold with indistinguishable confidence. No match is written; the tie
// is resolved only by an explicit manual link.
type AmbiguityError struct {
	TransactionID string
	Candidates    []Candidate
}

func (e *AmbiguityError) Error() string {
	parts := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		parts[i] = fmt.Sprintf("%s@%s (%.2f)",
			c.Instance.SeriesID, c.Instance.ScheduledDate.Format("2006-01-02"), c.Confidence)
	}
	return fmt.Sprintf("ambiguous match for transaction %s: %s",
		e.TransactionID, strings.Join(parts, ", "))
}

// Scorer scores and resolves candidates under one Config.
// Scoring is pure and safe for concurrent use.
type Scorer struct {
	config Config
}

// NewScorer creates a scorer with the given config.
func NewScorer(config Config) *Scorer {
	return &Scorer{config: config}
}

// Config returns the scorer's configuration.
func (s *Scorer) Config() Config {
	return s.config
}

// Score computes the confidence in [0,1] that tx and inst represent the
// same real-world event.
func (s *Scorer) Score(tx ledger.Transaction, inst ledger.RecurringInstance) float64 {
	desc := s.descriptionScore(tx.Description, inst.ExpectedDescription)
	amount := s.amountScore(tx.Amount, inst.ExpectedAmount)
	date := s.dateScore(tx.Date, inst.ScheduledDate)

	return s.config.DescriptionWeight*desc +
		s.config.AmountWeight*amount +
		s.config.DateWeight*date
}

// descriptionScore is 1.0 when the pair is textually matching within the
// edit-distance threshold, scaled down linearly as the distance grows past
// it (token overlap keeps such pairs matching while the distance drifts),
// and 0 when the pair is not textually matching at all.
func (s *Scorer) descriptionScore(raw, expected string) float64 {
	a := normalize.Description(raw)
	b := normalize.Description(expected)

	// A description that normalizes to nothing carries no evidence.
	// Without this guard two empty strings would compare at distance
	// zero and score a perfect 1.0.
	if a.Text == "" || b.Text == "" {
		return 0
	}
	if !s.config.Similarity.Matches(a, b) {
		return 0
	}

	dist := similarity.Distance(a.Text, b.Text)
	max := s.config.Similarity.MaxEditDistance
	if dist <= max {
		return 1.0
	}
	score := 1.0 - float64(dist-max)/float64(max)
	if score < 0 {
		return 0
	}
	return score
}

// amountScore is 1.0 on an exact match of absolute values (sign-flipped
// transfer legs compare equal) and decays linearly to 0 as the percentage
// difference approaches the configured tolerance ceiling.
func (s *Scorer) amountScore(actual, expected decimal.Decimal) float64 {
	a := actual.Abs()
	e := expected.Abs()

	if a.Equal(e) {
		return 1.0
	}
	if e.IsZero() {
		// no basis for a percentage; a zero expectation only matches zero
		return 0
	}

	pctDiff := a.Sub(e).Abs().Div(e).InexactFloat64()
	score := 1.0 - pctDiff/s.config.AmountTolerancePct
	if score < 0 {
		return 0
	}
	return score
}

// dateScore is 1.0 on the scheduled day, decaying linearly to 0 at the
// window edge and 0 outside it.
func (s *Scorer) dateScore(actual, scheduled time.Time) float64 {
	days := ledger.DaysBetween(actual, scheduled)
	if days >= s.config.DateWindowDays {
		return 0
	}
	return 1.0 - float64(days)/float64(s.config.DateWindowDays)
}

// Evaluate scores every candidate instance for tx and resolves a winner.
//
// Returns the winning candidate, or nil when no candidate clears the accept
// threshold (the transaction stays unmatched). The second return value lists
// every candidate at or above the reject threshold, best first, for
// ambiguity reporting. An AmbiguityError is returned when two or more
// accepted candidates are within epsilon of each other.
func (s *Scorer) Evaluate(tx ledger.Transaction, instances []ledger.RecurringInstance) (*Candidate, []Candidate, error) {
	var retained []Candidate
	for _, inst := range instances {
		if ledger.DaysBetween(tx.Date, inst.ScheduledDate) > s.config.DateWindowDays {
			continue
		}
		score := s.Score(tx, inst)
		if score < s.config.RejectThreshold {
			continue
		}
		retained = append(retained, Candidate{Instance: inst, Confidence: score})
	}

	sort.SliceStable(retained, func(i, j int) bool {
		return retained[i].Confidence > retained[j].Confidence
	})

	winner, err := s.pickWinner(tx.ID, retained)
	return winner, retained, err
}

// pickWinner applies the accept threshold and the ambiguity rule to a list
// of candidates sorted by confidence descending.
func (s *Scorer) pickWinner(transactionID string, sorted []Candidate) (*Candidate, error) {
	var accepted []Candidate
	for _, c := range sorted {
		if c.Confidence >= s.config.AcceptThreshold {
			accepted = append(accepted, c)
		}
	}

	switch len(accepted) {
	case 0:
		return nil, nil
	case 1:
		return &accepted[0], nil
	}

	// Tied means within epsilon of the best; naming only the tied
	// candidates keeps the report actionable.
	tied := []Candidate{accepted[0]}
	for _, c := range accepted[1:] {
		if accepted[0].Confidence-c.Confidence <= s.config.AmbiguityEpsilon {
			tied = append(tied, c)
		}
	}
	if len(tied) > 1 {
		return nil, &AmbiguityError{TransactionID: transactionID, Candidates: tied}
	}
	return &accepted[0], nil
}

// Report converts retained candidates into the user-facing ambiguity report.
func Report(transactionID string, candidates []Candidate) ledger.AmbiguityReport {
	out := ledger.AmbiguityReport{TransactionID: transactionID}
	for _, c := range candidates {
		out.Candidates = append(out.Candidates, ledger.ScoredCandidate{
			SeriesID:      c.Instance.SeriesID,
			ScheduledDate: c.Instance.ScheduledDate,
			Confidence:    c.Confidence,
		})
	}
	return out
}
