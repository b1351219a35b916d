package matcher

import (
	"github.com/ledgerline/ledgerline-backend/internal/domain/similarity"
)

// Config holds every tolerance the scoring pipeline uses. It is passed in
// explicitly so the same engine can run with different tolerances in tests
// and in production.
type Config struct {
	Similarity similarity.Thresholds

	// Weights of the three confidence signals. They should sum to 1.0.
	DescriptionWeight float64
	AmountWeight      float64
	DateWeight        float64

	// AmountTolerancePct is the absolute percentage difference at which the
	// amount signal decays to zero. The default of 1.0 (100%) means amount
	// may differ arbitrarily for description-confirmed matches; it is a
	// product policy knob, not a domain law.
	AmountTolerancePct float64

	// DateWindowDays bounds candidate generation for reconciliation and is
	// the edge at which the date signal decays to zero.
	DateWindowDays int

	// AcceptThreshold is the confidence a candidate must clear to be
	// eligible as the automatic match. RejectThreshold is the confidence
	// below which a candidate is discarded entirely; scores in between are
	// retained only for ambiguity reporting.
	AcceptThreshold float64
	RejectThreshold float64

	// AmbiguityEpsilon is the score distance within which two accepted
	// candidates are considered indistinguishable.
	AmbiguityEpsilon float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Similarity:         similarity.DefaultThresholds(),
		DescriptionWeight:  0.5,
		AmountWeight:       0.3,
		DateWeight:         0.2,
		AmountTolerancePct: 1.0,
		DateWindowDays:     3,
		AcceptThreshold:    0.8,
		RejectThreshold:    0.4,
		AmbiguityEpsilon:   0.02,
	}
}
