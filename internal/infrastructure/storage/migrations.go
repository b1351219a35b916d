package storage

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration.
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order.
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "active_match_uniqueness",
		Up:      migration002ActiveMatchUniqueness,
	},
}

// runMigrations executes all pending migrations.
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version, migration.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func (s *Storage) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	return err
}

func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func migration001InitialSchema(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE transactions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			date TEXT NOT NULL,
			description TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD',
			kind TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX idx_transactions_account_date ON transactions(account_id, date)`,

		`CREATE TABLE recurring_instances (
			series_id TEXT NOT NULL,
			scheduled_date TEXT NOT NULL,
			expected_description TEXT NOT NULL,
			expected_amount TEXT NOT NULL,
			PRIMARY KEY (series_id, scheduled_date)
		)`,
		`CREATE INDEX idx_instances_date ON recurring_instances(scheduled_date)`,

		`CREATE TABLE import_patterns (
			id TEXT PRIMARY KEY,
			series_id TEXT NOT NULL,
			pattern TEXT NOT NULL
		)`,

		`CREATE TABLE reconciliation_matches (
			id TEXT PRIMARY KEY,
			transaction_id TEXT NOT NULL,
			series_id TEXT NOT NULL,
			scheduled_date TEXT NOT NULL,
			source TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence REAL,
			created_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migration002ActiveMatchUniqueness makes the at-most-one-active-match
// invariant a database constraint rather than application logic. Partial
// unique indexes let rejected matches accumulate while exactly one active
// match may claim each side.
func migration002ActiveMatchUniqueness(tx *sql.Tx) error {
	stmts := []string{
		`CREATE UNIQUE INDEX idx_matches_active_transaction
			ON reconciliation_matches(transaction_id) WHERE status = 'active'`,
		`CREATE UNIQUE INDEX idx_matches_active_instance
			ON reconciliation_matches(series_id, scheduled_date) WHERE status = 'active'`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
