package rollup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergedLength(t *testing.T) {
	tests := []struct {
		name      string
		intervals []Interval
		want      int
	}{
		{"empty", nil, 0},
		{"single", []Interval{{600, 630}}, 30},
		{"overlapping", []Interval{{600, 630}, {620, 650}}, 50},
		{"disjoint", []Interval{{600, 630}, {660, 680}}, 50},
		{"touching", []Interval{{600, 630}, {630, 660}}, 60},
		{"contained", []Interval{{600, 700}, {620, 640}}, 100},
		{"unsorted", []Interval{{660, 680}, {600, 630}, {620, 650}}, 70},
		{"empty interval", []Interval{{600, 600}, {610, 605}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergedLength(tt.intervals))
		})
	}
}

func TestMergedLength_NeverExceedsRawSum(t *testing.T) {
	sets := [][]Interval{
		{{0, 10}, {5, 15}, {12, 30}},
		{{100, 200}, {100, 200}},
		{{10, 20}, {30, 40}, {50, 60}},
		{{0, 1440}, {60, 120}, {700, 1500}},
	}

	for _, set := range sets {
		raw := 0
		overlap := false
		for i, a := range set {
			raw += a.Len()
			for _, b := range set[i+1:] {
				if a.Start < b.End && b.Start < a.End {
					overlap = true
				}
			}
		}
		merged := MergedLength(set)
		assert.LessOrEqual(t, merged, raw)
		assert.Equal(t, !overlap, merged == raw, "equality iff no overlap: %v", set)
	}
}
