// Package pattern implements user-configured wildcard matching of imported
// descriptions to recurring series.
//
// A pattern is a case-insensitive string where `*` matches any run of
// characters; anchors are implicit at both ends. A pattern hit identifies
// its owning series with confidence 1.0 and bypasses scoring entirely,
// because the user configured the attribution explicitly. Patterns belonging
// to different series must not overlap; that invariant is validated when the
// pattern set is mutated, never at match time.
package pattern

import (
	"fmt"
	"strings"

	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
)

// ConfigError reports a malformed pattern or an overlap between patterns of
// different series. Surfaced at configuration-write time.
type ConfigError struct {
	Pattern  string
	Conflict string // second pattern involved, empty for malformed patterns
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Conflict == "" {
		return fmt.Sprintf("import pattern %q: %s", e.Pattern, e.Reason)
	}
	return fmt.Sprintf("import patterns %q and %q: %s", e.Pattern, e.Conflict, e.Reason)
}

// Match checks a description against every configured pattern. At most one
// pattern may match because the set is validated non-overlapping; if two
// patterns of different series match anyway the configuration is broken and
// a ConfigError is returned rather than an arbitrary pick.
func Match(description string, patterns []ledger.ImportPattern) (*ledger.ImportPattern, error) {
	desc := strings.ToLower(strings.TrimSpace(description))

	var hit *ledger.ImportPattern
	for i := range patterns {
		p := &patterns[i]
		if !matchWildcard(strings.ToLower(p.Pattern), desc) {
			continue
		}
		if hit != nil && hit.SeriesID != p.SeriesID {
			return nil, &ConfigError{
				Pattern:  hit.Pattern,
				Conflict: p.Pattern,
				Reason:   "both match the same description but belong to different series",
			}
		}
		if hit == nil {
			hit = p
		}
	}
	return hit, nil
}

// Validate checks that candidate is well formed and does not overlap any
// existing pattern owned by a different series.
func Validate(candidate ledger.ImportPattern, existing []ledger.ImportPattern) error {
	p := normalizePattern(candidate.Pattern)
	if strings.Trim(p, "*") == "" {
		return &ConfigError{Pattern: candidate.Pattern, Reason: "pattern has no literal text"}
	}

	for _, other := range existing {
		if other.SeriesID == candidate.SeriesID {
			continue
		}
		if overlaps(p, normalizePattern(other.Pattern)) {
			return &ConfigError{
				Pattern:  candidate.Pattern,
				Conflict: other.Pattern,
				Reason:   "patterns of different series overlap",
			}
		}
	}
	return nil
}

// normalizePattern lowercases and collapses runs of consecutive stars.
func normalizePattern(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	for strings.Contains(p, "**") {
		p = strings.ReplaceAll(p, "**", "*")
	}
	return p
}

// matchWildcard reports whether s matches pattern p, where `*` matches any
// run of characters and the pattern is anchored at both ends. Iterative
// two-pointer matching with backtracking to the last star.
func matchWildcard(p, s string) bool {
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(p) && p[pi] == '*':
			star, mark = pi, si
			pi++
		case pi < len(p) && p[pi] == s[si]:
			pi++
			si++
		case star >= 0:
			mark++
			pi, si = star+1, mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

// overlaps reports whether some string matches both patterns. Both patterns
// are sequences of literals and stars; the check walks them in lockstep,
// emitting characters accepted by both sides. Exact, not a heuristic.
func overlaps(a, b string) bool {
	type key struct{ i, j int }
	memo := make(map[key]bool)

	var walk func(i, j int) bool
	walk = func(i, j int) bool {
		if i == len(a) && j == len(b) {
			return true
		}
		k := key{i, j}
		if v, seen := memo[k]; seen {
			return v
		}

		var ok bool
		switch {
		case i < len(a) && a[i] == '*':
			// star matches empty, or absorbs the next character b accepts
			ok = walk(i+1, j) || (j < len(b) && walk(i, j+1))
		case j < len(b) && b[j] == '*':
			ok = walk(i, j+1) || (i < len(a) && walk(i+1, j))
		case i < len(a) && j < len(b) && a[i] == b[j]:
			ok = walk(i+1, j+1)
		}

		memo[k] = ok
		return ok
	}
	return walk(0, 0)
}
