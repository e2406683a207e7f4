package rollup

import "sort"

// Interval is a span in minutes since midnight. End may exceed 24h for a
// trip that crosses midnight.
type Interval struct {
	Start int
	End   int
}

// Len returns the interval length, or 0 for an empty interval.
func (i Interval) Len() int {
	if i.End <= i.Start {
		return 0
	}
	return i.End - i.Start
}

// MergedLength returns the length of the union of intervals. Intervals are
// sorted by start and folded left to right: an interval starting strictly
// before the current end extends it, anything else closes it. Touching
// intervals ([10:00,10:30] and [10:30,11:00]) do not overlap.
func MergedLength(intervals []Interval) int {
	if len(intervals) == 0 {
		return 0
	}

	sorted := append([]Interval(nil), intervals...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	total := 0
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if next.Start < cur.End {
			if next.End > cur.End {
				cur.End = next.End
			}
			continue
		}
		total += cur.Len()
		cur = next
	}
	return total + cur.Len()
}
