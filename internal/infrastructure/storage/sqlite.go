// Package storage provides SQLite persistence for transactions, recurring
// instance snapshots, import patterns, and reconciliation matches.
package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
)

const dayFormat = "2006-01-02"

// Storage provides SQLite database access. It implements Repository.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance backed by a SQLite database,
// running any pending migrations.
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// CreateTransaction persists a new transaction.
func (s *Storage) CreateTransaction(tx *ledger.Transaction) error {
	_, err := s.db.Exec(`
	INSERT INTO transactions (id, account_id, date, description, amount, currency, kind, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.AccountID,
		ledger.Day(tx.Date).Format(dayFormat),
		tx.Description,
		tx.Amount.String(),
		tx.Currency,
		string(tx.Kind),
		tx.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetTransaction retrieves a transaction by id.
func (s *Storage) GetTransaction(id string) (*ledger.Transaction, error) {
	row := s.db.QueryRow(`
	SELECT id, account_id, date, description, amount, currency, kind, created_at
	FROM transactions WHERE id = ?`, id)

	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return tx, err
}

// DuplicateCandidates returns same-account transactions within one day of
// date with the same absolute amount and kind.
func (s *Storage) DuplicateCandidates(accountID string, date time.Time, amount decimal.Decimal, kind ledger.Kind) ([]ledger.Transaction, error) {
	day := ledger.Day(date)
	rows, err := s.db.Query(`
	SELECT id, account_id, date, description, amount, currency, kind, created_at
	FROM transactions
	WHERE account_id = ? AND kind = ? AND date BETWEEN ? AND ?
	ORDER BY date ASC, created_at ASC`,
		accountID,
		string(kind),
		day.AddDate(0, 0, -1).Format(dayFormat),
		day.AddDate(0, 0, 1).Format(dayFormat),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Absolute-amount comparison happens here: decimal strings in the DB
	// are exact but signed.
	want := amount.Abs()
	var out []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		if tx.Amount.Abs().Equal(want) {
			out = append(out, *tx)
		}
	}
	return out, rows.Err()
}

// ListTransactions returns transactions for an account, newest first.
func (s *Storage) ListTransactions(accountID string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
	SELECT id, account_id, date, description, amount, currency, kind, created_at
	FROM transactions WHERE account_id = ?
	ORDER BY date DESC, created_at DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// UpsertInstance creates or refreshes a projected instance snapshot.
func (s *Storage) UpsertInstance(inst ledger.RecurringInstance) error {
	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO recurring_instances (series_id, scheduled_date, expected_description, expected_amount)
	VALUES (?, ?, ?, ?)`,
		inst.SeriesID,
		ledger.Day(inst.ScheduledDate).Format(dayFormat),
		inst.ExpectedDescription,
		inst.ExpectedAmount.String(),
	)
	return err
}

// GetInstance retrieves one instance by its identity.
func (s *Storage) GetInstance(seriesID string, scheduledDate time.Time) (*ledger.RecurringInstance, error) {
	row := s.db.QueryRow(`
	SELECT series_id, scheduled_date, expected_description, expected_amount
	FROM recurring_instances WHERE series_id = ? AND scheduled_date = ?`,
		seriesID, ledger.Day(scheduledDate).Format(dayFormat))

	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return inst, err
}

const unmatchedInstanceQuery = `
	SELECT i.series_id, i.scheduled_date, i.expected_description, i.expected_amount
	FROM recurring_instances i
	WHERE i.scheduled_date BETWEEN ? AND ?
	AND NOT EXISTS (
		SELECT 1 FROM reconciliation_matches m
		WHERE m.series_id = i.series_id
		AND m.scheduled_date = i.scheduled_date
		AND m.status = 'active'
	)`

// UnmatchedInstancesInWindow returns instances scheduled in [from, to] that
// are not already claimed by an active match.
func (s *Storage) UnmatchedInstancesInWindow(from, to time.Time) ([]ledger.RecurringInstance, error) {
	rows, err := s.db.Query(unmatchedInstanceQuery+" ORDER BY i.scheduled_date ASC",
		ledger.Day(from).Format(dayFormat), ledger.Day(to).Format(dayFormat))
	if err != nil {
		return nil, err
	}
	return collectInstances(rows)
}

// UnmatchedInstancesForSeries restricts the window query to one series.
func (s *Storage) UnmatchedInstancesForSeries(seriesID string, from, to time.Time) ([]ledger.RecurringInstance, error) {
	rows, err := s.db.Query(unmatchedInstanceQuery+" AND i.series_id = ? ORDER BY i.scheduled_date ASC",
		ledger.Day(from).Format(dayFormat), ledger.Day(to).Format(dayFormat), seriesID)
	if err != nil {
		return nil, err
	}
	return collectInstances(rows)
}

// ListPatterns returns every configured import pattern.
func (s *Storage) ListPatterns() ([]ledger.ImportPattern, error) {
	rows, err := s.db.Query(`SELECT id, series_id, pattern FROM import_patterns ORDER BY series_id, pattern`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.ImportPattern
	for rows.Next() {
		var p ledger.ImportPattern
		if err := rows.Scan(&p.ID, &p.SeriesID, &p.Pattern); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePattern persists a pattern.
func (s *Storage) CreatePattern(p *ledger.ImportPattern) error {
	_, err := s.db.Exec(`INSERT INTO import_patterns (id, series_id, pattern) VALUES (?, ?, ?)`,
		p.ID, p.SeriesID, p.Pattern)
	return err
}

// DeletePattern removes a pattern by id.
func (s *Storage) DeletePattern(id string) error {
	res, err := s.db.Exec(`DELETE FROM import_patterns WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateMatch persists a match. The partial unique indexes turn a double
// claim on either side into a constraint violation, which is surfaced as
// ErrActiveMatchExists; the insert itself is the serialization point.
func (s *Storage) CreateMatch(m *ledger.ReconciliationMatch) error {
	var confidence interface{}
	if m.Confidence != nil {
		confidence = *m.Confidence
	}
	_, err := s.db.Exec(`
	INSERT INTO reconciliation_matches (id, transaction_id, series_id, scheduled_date, source, status, confidence, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.TransactionID,
		m.SeriesID,
		ledger.Day(m.ScheduledDate).Format(dayFormat),
		string(m.Source),
		string(m.Status),
		confidence,
		m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrActiveMatchExists
	}
	return err
}

// GetMatch retrieves a match by id.
func (s *Storage) GetMatch(id string) (*ledger.ReconciliationMatch, error) {
	row := s.db.QueryRow(matchQuery+" WHERE id = ?", id)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

// ActiveMatchByTransaction returns the active match for a transaction, or
// nil when the transaction is unmatched.
func (s *Storage) ActiveMatchByTransaction(transactionID string) (*ledger.ReconciliationMatch, error) {
	row := s.db.QueryRow(matchQuery+" WHERE transaction_id = ? AND status = 'active'", transactionID)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// ActiveMatchByInstance returns the active match claiming an instance, or
// nil when the instance is free.
func (s *Storage) ActiveMatchByInstance(seriesID string, scheduledDate time.Time) (*ledger.ReconciliationMatch, error) {
	row := s.db.QueryRow(matchQuery+" WHERE series_id = ? AND scheduled_date = ? AND status = 'active'",
		seriesID, ledger.Day(scheduledDate).Format(dayFormat))
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// RejectMatch sets a match's status to rejected, freeing both sides.
func (s *Storage) RejectMatch(id string) error {
	res, err := s.db.Exec(`UPDATE reconciliation_matches SET status = 'rejected' WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const matchQuery = `
	SELECT id, transaction_id, series_id, scheduled_date, source, status, confidence, created_at
	FROM reconciliation_matches`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(sc scanner) (*ledger.Transaction, error) {
	var tx ledger.Transaction
	var date, amount, kind, createdAt string
	if err := sc.Scan(&tx.ID, &tx.AccountID, &date, &tx.Description, &amount, &tx.Currency, &kind, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if tx.Date, err = time.Parse(dayFormat, date); err != nil {
		return nil, fmt.Errorf("invalid transaction date %q: %w", date, err)
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid transaction amount %q: %w", amount, err)
	}
	if tx.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	tx.Kind = ledger.Kind(kind)
	return &tx, nil
}

func scanInstance(sc scanner) (*ledger.RecurringInstance, error) {
	var inst ledger.RecurringInstance
	var date, amount string
	if err := sc.Scan(&inst.SeriesID, &date, &inst.ExpectedDescription, &amount); err != nil {
		return nil, err
	}

	var err error
	if inst.ScheduledDate, err = time.Parse(dayFormat, date); err != nil {
		return nil, fmt.Errorf("invalid scheduled date %q: %w", date, err)
	}
	if inst.ExpectedAmount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid expected amount %q: %w", amount, err)
	}
	return &inst, nil
}

func scanMatch(sc scanner) (*ledger.ReconciliationMatch, error) {
	var m ledger.ReconciliationMatch
	var date, source, status, createdAt string
	var confidence sql.NullFloat64
	if err := sc.Scan(&m.ID, &m.TransactionID, &m.SeriesID, &date, &source, &status, &confidence, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if m.ScheduledDate, err = time.Parse(dayFormat, date); err != nil {
		return nil, fmt.Errorf("invalid scheduled date %q: %w", date, err)
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	m.Source = ledger.MatchSource(source)
	m.Status = ledger.MatchStatus(status)
	if confidence.Valid {
		c := confidence.Float64
		m.Confidence = &c
	}
	return &m, nil
}

func collectInstances(rows *sql.Rows) ([]ledger.RecurringInstance, error) {
	defer rows.Close()
	var out []ledger.RecurringInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}
