package analyze

import (
	"math"
	"sort"
)

const (
	// afkWindowSec is how long since a user's last message before they
	// stop accruing presence credit.
	afkWindowSec = 5 * 60
	// topActivePercent of chatters (by scaled activity) form the "active
	// core" whose mean sets the regular threshold.
	topActivePercent = 20
	topActiveCap     = 500
	// regularFactor of the core mean is the admission bar.
	regularFactor = 0.9
)

// RegularsSeries identifies the channel's "regular" viewers from the
// per-bucket user sets and scores each bucket by how many regulars were
// present. Presence credit accrues for every bucket within the AFK window
// of a user's last message, so sustained presence beats raw volume. The
// threshold adapts to channel size: it is a fraction of the mean scaled
// score of the top slice of chatters, not a fixed cutoff.
func RegularsSeries(ix *BucketIndex) Series {
	buckets := make([]int, 0, len(ix.Users))
	for b := range ix.Users {
		buckets = append(buckets, b)
	}
	sort.Ints(buckets)
	if len(buckets) == 0 {
		return nil
	}

	activity := make(map[string]int)
	for user := range allUsers(ix.Users) {
		lastActive := 0
		for _, b := range buckets {
			if _, ok := ix.Users[b][user]; ok {
				lastActive = b
			}
			if b-lastActive <= afkWindowSec {
				activity[user]++
			}
		}
	}

	// Normalize to an activity fraction, then compress the top of the
	// range (f^(1-f^0.3)) so the single most active user doesn't drown
	// out moderately active ones.
	type scored struct {
		user  string
		score float64
	}
	scaled := make([]scored, 0, len(activity))
	totalBuckets := float64(len(buckets))
	for user, count := range activity {
		f := float64(count) / totalBuckets
		scaled = append(scaled, scored{user, math.Pow(f, 1-math.Pow(f, 0.3))})
	}
	sort.Slice(scaled, func(i, j int) bool {
		if scaled[i].score != scaled[j].score {
			return scaled[i].score > scaled[j].score
		}
		return scaled[i].user < scaled[j].user
	})

	topCount := int(math.Round(float64(len(scaled)) * topActivePercent / 100))
	if topCount > topActiveCap {
		topCount = topActiveCap
	}
	if topCount < 1 {
		topCount = 1
	}
	var coreSum float64
	for _, s := range scaled[:topCount] {
		coreSum += s.score
	}
	bar := regularFactor * coreSum / float64(topCount)

	regulars := make(map[string]struct{})
	for _, s := range scaled {
		if s.score >= bar {
			regulars[s.user] = struct{}{}
		}
	}

	out := make(Series, 0, len(buckets))
	for _, b := range buckets {
		n := 0
		for user := range ix.Users[b] {
			if _, ok := regulars[user]; ok {
				n++
			}
		}
		out = append(out, Entry{Key: Key{Bucket: b}, Value: float64(n)})
	}
	return out
}

func allUsers(users map[int]map[string]struct{}) map[string]struct{} {
	all := make(map[string]struct{})
	for _, set := range users {
		for user := range set {
			all[user] = struct{}{}
		}
	}
	return all
}
