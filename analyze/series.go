// Package analyze turns a VOD chat transcript into ranked "interesting
// moment" timestamps. It extracts typed chat events from transcript lines,
// buckets them into fixed-width time windows, scores each bucket under a
// named preset heuristic, reduces raw score series into short ranked lists,
// and combines the default presets into one aggregate ranking.
package analyze

import "sort"

// MaxPlacement is the rank assigned to a bucket absent from a preset's
// results. It must be worse than any realistic observed rank so sparse
// presets don't dominate the aggregate.
const MaxPlacement = 300

// Key identifies one score entry: a time bucket in seconds, optionally
// paired with a message text (collective spam only).
type Key struct {
	Bucket  int
	Message string
}

// Entry is a single scored key.
type Entry struct {
	Key   Key
	Value float64
}

// Series is an ordered score series. Most operations (filtering, placement
// assignment) require it to be sorted descending by value first.
type Series []Entry

// SortDescending orders the series by value descending. Ties are broken by
// ascending bucket, then message, so results are deterministic.
func (s Series) SortDescending() {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Value != s[j].Value {
			return s[i].Value > s[j].Value
		}
		if s[i].Key.Bucket != s[j].Key.Bucket {
			return s[i].Key.Bucket < s[j].Key.Bucket
		}
		return s[i].Key.Message < s[j].Key.Message
	})
}

// SortAscending orders the series by value ascending (used for the
// aggregate, where lower composite placement is better).
func (s Series) SortAscending() {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Value != s[j].Value {
			return s[i].Value < s[j].Value
		}
		return s[i].Key.Bucket < s[j].Key.Bucket
	})
}

// Placements assigns 1-based ordinal ranks to a series already sorted
// descending by value. Ties are numbered in sort order.
func Placements(s Series) map[Key]int {
	places := make(map[Key]int, len(s))
	for i, e := range s {
		places[e.Key] = i + 1
	}
	return places
}

// Clone returns an independent copy; series handed across pipeline stages
// are never mutated after construction.
func (s Series) Clone() Series {
	out := make(Series, len(s))
	copy(out, s)
	return out
}
