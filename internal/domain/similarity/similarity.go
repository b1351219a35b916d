// Package similarity scores how alike two normalized descriptions are.
//
// Two independent measures are used: Levenshtein edit distance over the
// normalized strings (catches typo-level variance) and the Jaccard index
// over significant token sets (catches word-order and insertion variance,
// such as bank metadata interleaved between words). A pair is textually
// matching when either measure passes its threshold.
package similarity

import (
	"github.com/agnivade/levenshtein"

	"github.com/ledgerline/ledgerline-backend/internal/domain/normalize"
)

// Thresholds holds the pass criteria for both measures.
type Thresholds struct {
	// MaxEditDistance is the largest Levenshtein distance still considered
	// a match between two normalized strings.
	MaxEditDistance int

	// MinTokenOverlap is the smallest Jaccard index still considered a
	// match between two token sets.
	MinTokenOverlap float64
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxEditDistance: 5,
		MinTokenOverlap: 0.6,
	}
}

// Distance returns the Levenshtein edit distance between two strings.
func Distance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// Jaccard returns |A ∩ B| / |A ∪ B| over two token slices. Identical sets
// score 1.0, disjoint sets 0.0. Two empty sets are identical by convention.
func Jaccard(a, b []string) float64 {
	setA := normalize.TokenSet(a)
	setB := normalize.TokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Matches reports whether two normalized descriptions are textually
// matching under either measure.
func (t Thresholds) Matches(a, b normalize.Normalized) bool {
	if Distance(a.Text, b.Text) <= t.MaxEditDistance {
		return true
	}
	return Jaccard(a.Tokens, b.Tokens) >= t.MinTokenOverlap
}
