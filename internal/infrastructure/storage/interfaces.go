package storage

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrActiveMatchExists is returned when creating an active match would
// violate the at-most-one-active-match invariant on either side. The
// invariant lives in the database (partial unique indexes), so concurrent
// writers race safely: exactly one wins, the rest get this error.
var ErrActiveMatchExists = errors.New("active match already exists")

// Repository defines the complete storage interface. It allows swapping
// implementations and makes testing with the in-memory mock straightforward.
type Repository interface {
	TransactionRepository
	InstanceRepository
	PatternRepository
	MatchRepository
	Close() error
}

// TransactionRepository stores actual transactions.
type TransactionRepository interface {
	// CreateTransaction persists a new transaction.
	CreateTransaction(tx *ledger.Transaction) error

	// GetTransaction retrieves a transaction by id.
	GetTransaction(id string) (*ledger.Transaction, error)

	// DuplicateCandidates returns stored transactions on the account whose
	// date is within one day of date and whose absolute amount and kind
	// match exactly: the tight window duplicate detection operates on.
	DuplicateCandidates(accountID string, date time.Time, amount decimal.Decimal, kind ledger.Kind) ([]ledger.Transaction, error)

	// ListTransactions returns transactions for an account, newest first.
	ListTransactions(accountID string, limit int) ([]ledger.Transaction, error)
}

// InstanceRepository stores the read-model of projected recurring instances
// fed by the recurrence-expansion collaborator.
type InstanceRepository interface {
	// UpsertInstance creates or refreshes a projected instance snapshot.
	UpsertInstance(inst ledger.RecurringInstance) error

	// GetInstance retrieves one instance by its identity.
	GetInstance(seriesID string, scheduledDate time.Time) (*ledger.RecurringInstance, error)

	// UnmatchedInstancesInWindow returns instances scheduled in [from, to]
	// that are not the target of an active match.
	UnmatchedInstancesInWindow(from, to time.Time) ([]ledger.RecurringInstance, error)

	// UnmatchedInstancesForSeries is UnmatchedInstancesInWindow restricted
	// to one series, used to place a pattern hit on a concrete instance.
	UnmatchedInstancesForSeries(seriesID string, from, to time.Time) ([]ledger.RecurringInstance, error)
}

// PatternRepository stores user-authored import patterns.
type PatternRepository interface {
	// ListPatterns returns every configured pattern.
	ListPatterns() ([]ledger.ImportPattern, error)

	// CreatePattern persists a pattern. Overlap validation happens in the
	// service layer before this is called.
	CreatePattern(p *ledger.ImportPattern) error

	// DeletePattern removes a pattern by id.
	DeletePattern(id string) error
}

// MatchRepository stores reconciliation matches.
type MatchRepository interface {
	// CreateMatch persists a match. Creating an active match fails with
	// ErrActiveMatchExists when either side already has one.
	CreateMatch(m *ledger.ReconciliationMatch) error

	// GetMatch retrieves a match by id.
	GetMatch(id string) (*ledger.ReconciliationMatch, error)

	// ActiveMatchByTransaction returns the active match for a transaction,
	// or nil when the transaction is unmatched.
	ActiveMatchByTransaction(transactionID string) (*ledger.ReconciliationMatch, error)

	// ActiveMatchByInstance returns the active match claiming an instance,
	// or nil when the instance is free.
	ActiveMatchByInstance(seriesID string, scheduledDate time.Time) (*ledger.ReconciliationMatch, error)

	// RejectMatch sets a match's status to rejected, freeing both sides.
	RejectMatch(id string) error
}
