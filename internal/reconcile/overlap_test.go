package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestOverlaps(t *testing.T) {
	testCases := []struct {
		name     string
		aStart   string
		aEnd     string
		bStart   string
		bEnd     string
		expected bool
	}{
		{"identical ranges", "2024-06-01", "2024-06-05", "2024-06-01", "2024-06-05", true},
		{"partial overlap", "2024-06-01", "2024-06-05", "2024-06-03", "2024-06-07", true},
		{"b inside a", "2024-06-01", "2024-06-10", "2024-06-03", "2024-06-04", true},
		{"adjacent, a before b", "2024-06-01", "2024-06-05", "2024-06-05", "2024-06-07", false},
		{"adjacent, b before a", "2024-06-05", "2024-06-07", "2024-06-01", "2024-06-05", false},
		{"disjoint", "2024-06-01", "2024-06-02", "2024-07-01", "2024-07-02", false},
		{"single night same day", "2024-06-01", "2024-06-02", "2024-06-01", "2024-06-02", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a1, a2, b1, b2 := day(tc.aStart), day(tc.aEnd), day(tc.bStart), day(tc.bEnd)
			assert.Equal(t, tc.expected, Overlaps(a1, a2, b1, b2))
			assert.Equal(t, tc.expected, Overlaps(b1, b2, a1, a2), "overlap must be symmetric")
		})
	}
}
