// Package importer turns CSV files into parsed rows for the import
// pipeline. The column layout is fixed; per-bank column mapping is handled
// upstream before files reach this format.
package importer

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
)

// csvRow mirrors one line of the canonical import format.
type csvRow struct {
	Date        string `csv:"date"`
	Description string `csv:"description"`
	Amount      string `csv:"amount"`
	Currency    string `csv:"currency"`
	Kind        string `csv:"kind"`
	AccountID   string `csv:"account_id"`
}

// ReadFile parses a CSV file into rows ready for import.
func ReadFile(path string) ([]ledger.ParsedRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses CSV content into rows ready for import. Every row must parse;
// a malformed row fails the whole file with its line number, since a partial
// read would silently drop money movements.
func Read(r io.Reader) ([]ledger.ParsedRow, error) {
	var raw []csvRow
	if err := gocsv.Unmarshal(r, &raw); err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}

	rows := make([]ledger.ParsedRow, 0, len(raw))
	for i, rec := range raw {
		row, err := toParsedRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func toParsedRow(rec csvRow) (ledger.ParsedRow, error) {
	var row ledger.ParsedRow

	date, err := time.Parse("2006-01-02", rec.Date)
	if err != nil {
		return row, fmt.Errorf("invalid date %q: %w", rec.Date, err)
	}

	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return row, fmt.Errorf("invalid amount %q: %w", rec.Amount, err)
	}

	kind, err := ledger.ParseKind(rec.Kind)
	if err != nil {
		return row, err
	}

	if rec.AccountID == "" {
		return row, fmt.Errorf("missing account_id")
	}

	currency := rec.Currency
	if currency == "" {
		currency = "USD"
	}

	return ledger.ParsedRow{
		Date:        ledger.Day(date),
		Description: rec.Description,
		Amount:      amount,
		Currency:    currency,
		Kind:        kind,
		AccountID:   rec.AccountID,
	}, nil
}
