// Package dedup decides whether a freshly imported row duplicates a
// transaction already on record.
//
// The check runs in two passes: an exact pass (same day, same description
// after trim+lowercase, same absolute amount, same kind) and a fuzzy pass
// that tolerates bank-added description noise but still requires amount and
// kind to match exactly. Duplicate suppression is a yes/no gate, so the
// candidate window is deliberately tight and multiple fuzzy hits resolve to
// the earliest-dated candidate instead of failing: favoring a false negative
// over blocking an import.
package dedup

import (
	"sort"
	"strings"

	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
	"github.com/ledgerline/ledgerline-backend/internal/domain/normalize"
	"github.com/ledgerline/ledgerline-backend/internal/domain/similarity"
)

// WindowDays is the duplicate-detection candidate window. Much tighter than
// the reconciliation window: a duplicate is the same event imported twice,
// not a best-effort link.
const WindowDays = 1

// Detector checks imported rows against stored transactions.
type Detector struct {
	thresholds similarity.Thresholds
}

// NewDetector creates a detector with the given similarity thresholds.
func NewDetector(thresholds similarity.Thresholds) *Detector {
	return &Detector{thresholds: thresholds}
}

// Check produces the duplicate verdict for row against candidate
// transactions from the same account. Candidates outside the window or with
// differing absolute amount or kind are ignored even if the caller supplied
// them.
func (d *Detector) Check(row ledger.ParsedRow, candidates []ledger.Transaction) ledger.DuplicateVerdict {
	eligible := make([]ledger.Transaction, 0, len(candidates))
	for _, tx := range candidates {
		if tx.AccountID != row.AccountID || tx.Kind != row.Kind {
			continue
		}
		if !tx.Amount.Abs().Equal(row.Amount.Abs()) {
			continue
		}
		if ledger.DaysBetween(tx.Date, row.Date) > WindowDays {
			continue
		}
		eligible = append(eligible, tx)
	}

	// Exact pass
	rowDesc := strings.ToLower(strings.TrimSpace(row.Description))
	for _, tx := range eligible {
		if !ledger.Day(tx.Date).Equal(ledger.Day(row.Date)) {
			continue
		}
		if strings.ToLower(strings.TrimSpace(tx.Description)) == rowDesc {
			return ledger.DuplicateVerdict{Kind: ledger.VerdictExactDuplicate, ExistingID: tx.ID}
		}
	}

	// Fuzzy pass, earliest-dated candidate wins
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Date.Before(eligible[j].Date)
	})
	rowNorm := normalize.Description(row.Description)
	for _, tx := range eligible {
		if d.thresholds.Matches(rowNorm, normalize.Description(tx.Description)) {
			return ledger.DuplicateVerdict{Kind: ledger.VerdictFuzzyDuplicate, ExistingID: tx.ID}
		}
	}

	return ledger.DuplicateVerdict{Kind: ledger.VerdictUnique}
}
