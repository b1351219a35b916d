package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerline/ledgerline-backend/internal/domain/normalize"
)

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance("netflix", "netflix"))
	assert.Equal(t, 1, Distance("netflix", "netflx"))
	assert.Equal(t, Distance("abc", "xyz"), Distance("xyz", "abc"), "distance is symmetric")
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"grocery", "store"}, []string{"store", "grocery"}, 1.0},
		{"disjoint", []string{"grocery"}, []string{"netflix"}, 0.0},
		{"partial", []string{"grocery", "store", "659"}, []string{"grocery", "store"}, 2.0 / 3.0},
		{"both empty", nil, nil, 1.0},
		{"one empty", []string{"grocery"}, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Jaccard(tt.a, tt.b), 1e-9)
		})
	}
}

func TestThresholds_Matches_EitherMeasure(t *testing.T) {
	th := DefaultThresholds()

	// Close in edit distance.
	a := normalize.Description("NETFLIX.COM")
	b := normalize.Description("NETFLIX")
	assert.True(t, th.Matches(a, b))

	// Far in edit distance, close in token overlap: extra words inserted
	// between the identifying tokens.
	c := normalize.Description("CITY OF SPRINGFIELD UTILITIES DEPARTMENT WATER SEWER")
	d := normalize.Description("CITY SPRINGFIELD UTILITIES WATER SEWER DEPARTMENT")
	assert.True(t, th.Matches(c, d))

	// Far in both.
	e := normalize.Description("STARBUCKS")
	f := normalize.Description("HOME DEPOT 4412")
	assert.False(t, th.Matches(e, f))
}
