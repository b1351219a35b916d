// Package ledger defines the core records the matching engine operates on:
// transactions, projected recurring instances, import patterns, and the
// match/verdict values the engine produces.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a transaction by direction.
type Kind string

const (
	KindIncome      Kind = "income"
	KindExpense     Kind = "expense"
	KindTransferIn  Kind = "transfer_in"
	KindTransferOut Kind = "transfer_out"
)

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindIncome:
		return KindIncome, nil
	case KindExpense:
		return KindExpense, nil
	case KindTransferIn:
		return KindTransferIn, nil
	case KindTransferOut:
		return KindTransferOut, nil
	}
	return "", fmt.Errorf("unknown transaction kind: %q", s)
}

// Transaction is an actual transaction on an account. Immutable once created
// except for user edits to description/date, which may invalidate a match.
type Transaction struct {
	ID          string
	AccountID   string
	Date        time.Time // day precision, UTC
	Description string
	Amount      decimal.Decimal // signed; negative = money out
	Currency    string
	Kind        Kind
	CreatedAt   time.Time
}

// ParsedRow is one structured row handed over by the CSV-parsing collaborator.
type ParsedRow struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Currency    string
	Kind        Kind
	AccountID   string
}

// RecurringInstance is one projected occurrence of a recurring series on a
// specific scheduled date. Produced by recurrence expansion, read-only here.
type RecurringInstance struct {
	SeriesID            string
	ScheduledDate       time.Time
	ExpectedDescription string
	ExpectedAmount      decimal.Decimal
}

// ImportPattern is a user-authored wildcard string that deterministically
// attributes an imported description to one recurring series.
type ImportPattern struct {
	ID       string
	SeriesID string
	Pattern  string
}

// MatchSource records whether a match was created by the scoring pipeline or
// by explicit user action.
type MatchSource string

const (
	SourceAuto   MatchSource = "auto"
	SourceManual MatchSource = "manual"
)

// MatchStatus is the lifecycle state of a reconciliation match.
type MatchStatus string

const (
	StatusActive   MatchStatus = "active"
	StatusRejected MatchStatus = "rejected"
)

// ReconciliationMatch links one transaction to one recurring instance.
// At most one active match may exist per transaction and per instance.
type ReconciliationMatch struct {
	ID            string
	TransactionID string
	SeriesID      string
	ScheduledDate time.Time
	Source        MatchSource
	Status        MatchStatus
	Confidence    *float64 // set only for auto matches
	CreatedAt     time.Time
}

// VerdictKind is the outcome class of duplicate detection for one row.
type VerdictKind string

const (
	VerdictUnique         VerdictKind = "unique"
	VerdictExactDuplicate VerdictKind = "exact_duplicate"
	VerdictFuzzyDuplicate VerdictKind = "fuzzy_duplicate"
)

// DuplicateVerdict is the transient per-row decision produced during import.
// ExistingID is set when the row duplicates a stored transaction.
type DuplicateVerdict struct {
	Kind       VerdictKind
	ExistingID string
}

// IsDuplicate reports whether the row should be skipped.
func (v DuplicateVerdict) IsDuplicate() bool {
	return v.Kind == VerdictExactDuplicate || v.Kind == VerdictFuzzyDuplicate
}

// ScoredCandidate is one (series, scheduled date) candidate with its
// confidence, as surfaced to the user in ambiguity reports.
type ScoredCandidate struct {
	SeriesID      string    `json:"series_id"`
	ScheduledDate time.Time `json:"scheduled_date"`
	Confidence    float64   `json:"confidence"`
}

// AmbiguityReport lists the candidates a transaction could not be
// automatically matched between, driving the manual link workflow.
type AmbiguityReport struct {
	TransactionID string            `json:"transaction_id"`
	Candidates    []ScoredCandidate `json:"candidates"`
}

// Day truncates t to midnight UTC so all date comparisons work at day
// precision regardless of the source timezone.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute whole-day distance between two dates.
func DaysBetween(a, b time.Time) int {
	d := Day(a).Sub(Day(b))
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
