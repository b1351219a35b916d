package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It enforces the same active-match uniqueness rule as the SQLite
// implementation so service tests exercise the real invariant.
type MockRepository struct {
	mu           sync.Mutex
	transactions map[string]*ledger.Transaction
	instances    map[string]ledger.RecurringInstance // key: seriesID|date
	patterns     map[string]ledger.ImportPattern
	matches      map[string]*ledger.ReconciliationMatch

	// Error injection for testing error paths
	CreateTransactionErr error
	CreateMatchErr       error
	CreatePatternErr     error
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// NewMockRepository creates a new mock repository for testing.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		transactions: make(map[string]*ledger.Transaction),
		instances:    make(map[string]ledger.RecurringInstance),
		patterns:     make(map[string]ledger.ImportPattern),
		matches:      make(map[string]*ledger.ReconciliationMatch),
	}
}

func instanceKey(seriesID string, date time.Time) string {
	return seriesID + "|" + ledger.Day(date).Format(dayFormat)
}

// Close is a no-op for the mock.
func (m *MockRepository) Close() error { return nil }

// CreateTransaction stores a transaction in memory.
func (m *MockRepository) CreateTransaction(tx *ledger.Transaction) error {
	if m.CreateTransactionErr != nil {
		return m.CreateTransactionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.transactions[tx.ID] = &cp
	return nil
}

// GetTransaction retrieves a transaction by id.
func (m *MockRepository) GetTransaction(id string) (*ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

// DuplicateCandidates mirrors the SQLite tight-window query.
func (m *MockRepository) DuplicateCandidates(accountID string, date time.Time, amount decimal.Decimal, kind ledger.Kind) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := amount.Abs()
	var out []ledger.Transaction
	for _, tx := range m.transactions {
		if tx.AccountID != accountID || tx.Kind != kind {
			continue
		}
		if ledger.DaysBetween(tx.Date, date) > 1 {
			continue
		}
		if !tx.Amount.Abs().Equal(want) {
			continue
		}
		out = append(out, *tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// ListTransactions returns transactions for an account, newest first.
func (m *MockRepository) ListTransactions(accountID string, limit int) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Transaction
	for _, tx := range m.transactions {
		if tx.AccountID == accountID {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertInstance stores a projected instance snapshot.
func (m *MockRepository) UpsertInstance(inst ledger.RecurringInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst.ScheduledDate = ledger.Day(inst.ScheduledDate)
	m.instances[instanceKey(inst.SeriesID, inst.ScheduledDate)] = inst
	return nil
}

// GetInstance retrieves one instance by its identity.
func (m *MockRepository) GetInstance(seriesID string, scheduledDate time.Time) (*ledger.RecurringInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[instanceKey(seriesID, scheduledDate)]
	if !ok {
		return nil, ErrNotFound
	}
	return &inst, nil
}

// UnmatchedInstancesInWindow returns unclaimed instances in [from, to].
func (m *MockRepository) UnmatchedInstancesInWindow(from, to time.Time) ([]ledger.RecurringInstance, error) {
	return m.unmatchedInstances("", from, to)
}

// UnmatchedInstancesForSeries restricts the window query to one series.
func (m *MockRepository) UnmatchedInstancesForSeries(seriesID string, from, to time.Time) ([]ledger.RecurringInstance, error) {
	return m.unmatchedInstances(seriesID, from, to)
}

func (m *MockRepository) unmatchedInstances(seriesID string, from, to time.Time) ([]ledger.RecurringInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fromDay, toDay := ledger.Day(from), ledger.Day(to)
	var out []ledger.RecurringInstance
	for _, inst := range m.instances {
		if seriesID != "" && inst.SeriesID != seriesID {
			continue
		}
		if inst.ScheduledDate.Before(fromDay) || inst.ScheduledDate.After(toDay) {
			continue
		}
		if m.activeByInstanceLocked(inst.SeriesID, inst.ScheduledDate) != nil {
			continue
		}
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].SeriesID < out[j].SeriesID
		}
		return out[i].ScheduledDate.Before(out[j].ScheduledDate)
	})
	return out, nil
}

// ListPatterns returns every configured pattern.
func (m *MockRepository) ListPatterns() ([]ledger.ImportPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.ImportPattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out, nil
}

// CreatePattern stores a pattern.
func (m *MockRepository) CreatePattern(p *ledger.ImportPattern) error {
	if m.CreatePatternErr != nil {
		return m.CreatePatternErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns[p.ID] = *p
	return nil
}

// DeletePattern removes a pattern by id.
func (m *MockRepository) DeletePattern(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patterns[id]; !ok {
		return ErrNotFound
	}
	delete(m.patterns, id)
	return nil
}

// CreateMatch stores a match, enforcing active uniqueness on both sides.
func (m *MockRepository) CreateMatch(match *ledger.ReconciliationMatch) error {
	if m.CreateMatchErr != nil {
		return m.CreateMatchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if match.Status == ledger.StatusActive {
		if m.activeByTransactionLocked(match.TransactionID) != nil {
			return ErrActiveMatchExists
		}
		if m.activeByInstanceLocked(match.SeriesID, match.ScheduledDate) != nil {
			return ErrActiveMatchExists
		}
	}
	cp := *match
	cp.ScheduledDate = ledger.Day(cp.ScheduledDate)
	m.matches[match.ID] = &cp
	return nil
}

// GetMatch retrieves a match by id.
func (m *MockRepository) GetMatch(id string) (*ledger.ReconciliationMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *match
	return &cp, nil
}

// ActiveMatchByTransaction returns the active match for a transaction.
func (m *MockRepository) ActiveMatchByTransaction(transactionID string) (*ledger.ReconciliationMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if match := m.activeByTransactionLocked(transactionID); match != nil {
		cp := *match
		return &cp, nil
	}
	return nil, nil
}

// ActiveMatchByInstance returns the active match claiming an instance.
func (m *MockRepository) ActiveMatchByInstance(seriesID string, scheduledDate time.Time) (*ledger.ReconciliationMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if match := m.activeByInstanceLocked(seriesID, scheduledDate); match != nil {
		cp := *match
		return &cp, nil
	}
	return nil, nil
}

// RejectMatch sets a match's status to rejected.
func (m *MockRepository) RejectMatch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[id]
	if !ok {
		return ErrNotFound
	}
	match.Status = ledger.StatusRejected
	return nil
}

func (m *MockRepository) activeByTransactionLocked(transactionID string) *ledger.ReconciliationMatch {
	for _, match := range m.matches {
		if match.TransactionID == transactionID && match.Status == ledger.StatusActive {
			return match
		}
	}
	return nil
}

func (m *MockRepository) activeByInstanceLocked(seriesID string, date time.Time) *ledger.ReconciliationMatch {
	day := ledger.Day(date)
	for _, match := range m.matches {
		if match.SeriesID == seriesID && match.ScheduledDate.Equal(day) && match.Status == ledger.StatusActive {
			return match
		}
	}
	return nil
}
