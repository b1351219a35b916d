// Package normalize reduces free-text bank descriptions to a canonical form.
//
// Bank feeds pollute merchant names with dates, confirmation codes, masked
// card numbers, phone numbers and boilerplate ("DEBIT CARD PURCHASE", city
// and state suffixes). Normalization strips that noise by shape, not by a
// fixed list of bank names, so the similarity layer compares only the words
// that identify the counterparty.
//
// All functions are pure: no I/O, no shared state, same input same output.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// Normalized is the canonical form of a description: a lowercase,
// single-spaced string plus the set of significant tokens in it.
type Normalized struct {
	Text   string
	Tokens []string
}

var (
	// MM/DD/YYYY, MM/DD, M/D
	dateRe = regexp.MustCompile(`\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`)

	// Labeled reference codes: "conf# AB12CD", "id: 998877", "ref 4417".
	// With an explicit # or : separator any token is a code; with bare
	// whitespace the token must contain a digit, so plain-word pairs like
	// "REF GROCERY" survive.
	refLabelRe = regexp.MustCompile(`(?i)\b(?:conf|confirmation|ref|id)(?:\s*[#:]\s*[A-Za-z0-9-]+|\s+[A-Za-z-]*\d[A-Za-z0-9-]*)`)

	// Phone numbers: 7-11 digits with optional separators.
	phoneRe = regexp.MustCompile(`\+?\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`)

	// Multi-word boilerplate phrases are stripped before tokenizing.
	phraseRe = regexp.MustCompile(`(?i)\b(?:debit card|web payment|online payment)\b`)

	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// Single-token boilerplate removed wherever it appears.
var boilerplate = map[string]bool{
	"purchase": true,
	"mobile":   true,
	"ach":      true,
	"pos":      true,
	"online":   true,
	"web":      true,
	"payment":  true,
	"debit":    true,
	"card":     true,
	"checkcard": true,
	"recurring": true,
	"withdrawal": true,
}

// Two-letter US state codes, only stripped when trailing.
var stateCodes = map[string]bool{
	"al": true, "ak": true, "az": true, "ar": true, "ca": true, "co": true,
	"ct": true, "de": true, "fl": true, "ga": true, "hi": true, "id": true,
	"il": true, "in": true, "ia": true, "ks": true, "ky": true, "la": true,
	"me": true, "md": true, "ma": true, "mi": true, "mn": true, "ms": true,
	"mo": true, "mt": true, "ne": true, "nv": true, "nh": true, "nj": true,
	"nm": true, "ny": true, "nc": true, "nd": true, "oh": true, "ok": true,
	"or": true, "pa": true, "ri": true, "sc": true, "sd": true, "tn": true,
	"tx": true, "ut": true, "vt": true, "va": true, "wa": true, "wv": true,
	"wi": true, "wy": true, "dc": true,
}

// Description normalizes a raw bank description. Idempotent:
// Description(Description(s).Text) yields the same result.
func Description(raw string) Normalized {
	text := strings.ToLower(strings.TrimSpace(raw))

	// Stripping can expose new noise: dropping a city name may leave a
	// state code trailing, and removing punctuation can put a reference
	// label next to its code. Iterate to a fixed point so the output is
	// stable under re-normalization. Each changing pass only removes
	// characters, so this terminates.
	for {
		next := pass(text)
		if next == text {
			break
		}
		text = next
	}

	var tokens []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		if len(w) >= 3 && !seen[w] {
			seen[w] = true
			tokens = append(tokens, w)
		}
	}

	return Normalized{Text: text, Tokens: tokens}
}

// pass applies one round of noise removal to lowercase text.
func pass(s string) string {
	s = dateRe.ReplaceAllString(s, " ")
	s = refLabelRe.ReplaceAllString(s, " ")
	s = phoneRe.ReplaceAllString(s, " ")
	s = phraseRe.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		word := nonAlnumRe.ReplaceAllString(f, "")
		if word == "" {
			continue
		}
		if boilerplate[word] {
			continue
		}
		if isReferenceCode(word) || isMaskedAccount(f) || isPhoneRun(word) {
			continue
		}
		kept = append(kept, word)
	}

	// A trailing state code is bank-added location metadata; the token
	// before it is the city name and goes with it. Locations may stack
	// ("bodega la ca"), so keep stripping while a state code trails.
	// Never consume the last remaining token: some merchant names are
	// state-code shaped, and an empty result helps nobody.
	for {
		n := len(kept)
		if n < 2 || !stateCodes[kept[n-1]] {
			break
		}
		kept = kept[:n-1]
		if n = len(kept); n > 1 && isAlphabetic(kept[n-1]) && !isCanonicalWord(kept[n-1]) {
			kept = kept[:n-1]
		}
	}

	return strings.Join(kept, " ")
}

// TokenSet returns the significant tokens of s as a set.
func TokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// isReferenceCode reports whether a token looks like a bank reference code:
// six or more alphanumeric characters mixing letters and digits.
func isReferenceCode(word string) bool {
	if len(word) < 6 {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range word {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// isMaskedAccount reports whether the original field is a masked account
// number: x/* runs mixed with digits, e.g. "XXXX1234" or "****-5678".
func isMaskedAccount(field string) bool {
	var masks, digits, other int
	for _, r := range strings.ToLower(field) {
		switch {
		case r == 'x' || r == '*':
			masks++
		case unicode.IsDigit(r):
			digits++
		case r == '-' || r == '.':
		default:
			other++
		}
	}
	return masks >= 2 && digits >= 1 && other == 0
}

// isPhoneRun reports whether a token is a bare 7-11 digit run.
func isPhoneRun(word string) bool {
	if len(word) < 7 || len(word) > 11 {
		return false
	}
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isAlphabetic(word string) bool {
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return len(word) > 0
}

// isCanonicalWord guards the city heuristic: a word that is itself a state
// code or shorter than 3 runes is not treated as a droppable city name.
func isCanonicalWord(word string) bool {
	return len(word) < 3 || stateCodes[word]
}
