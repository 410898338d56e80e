package analyze

import "math"

// Metric functions are pure: they map a finished BucketIndex to one score
// series and never mutate the index. Buckets with zero messages are never
// present as keys, so the per-message formulas divide safely.

// CountSeries scores each bucket by its raw accepted-event count (the
// all/caps/caps-only presets and custom query presets).
func CountSeries(ix *BucketIndex) Series {
	out := make(Series, 0, len(ix.Counts))
	for bucket, n := range ix.Counts {
		out = append(out, Entry{Key: Key{Bucket: bucket}, Value: float64(n)})
	}
	return out
}

// UniqueUserSeries scores each bucket by the size of its distinct-user set.
func UniqueUserSeries(ix *BucketIndex) Series {
	out := make(Series, 0, len(ix.Users))
	for bucket, users := range ix.Users {
		out = append(out, Entry{Key: Key{Bucket: bucket}, Value: float64(len(users))})
	}
	return out
}

// CollectiveSeries emits one entry per distinct (bucket, message) pair,
// scored by that message's occurrence count in that bucket. Identical
// messages repeated at different times stay distinct.
func CollectiveSeries(ix *BucketIndex) Series {
	var out Series
	for bucket, freq := range ix.Messages {
		for message, count := range freq {
			out = append(out, Entry{Key: Key{Bucket: bucket, Message: message}, Value: float64(count)})
		}
	}
	return out
}

// SpamSeries rewards high volume with low message diversity (flooding,
// copypasta): count² / (2·distinct^1.1).
func SpamSeries(ix *BucketIndex) Series {
	out := make(Series, 0, len(ix.Messages))
	for bucket, freq := range ix.Messages {
		total := 0
		for _, n := range freq {
			total += n
		}
		score := math.Pow(float64(total), 2) / (2 * math.Pow(float64(len(freq)), 1.1))
		out = append(out, Entry{Key: Key{Bucket: bucket}, Value: round3(score)})
	}
	return out
}

// UniquenessSeries rewards high diversity relative to volume, the inverse
// emphasis of SpamSeries: distinct^2.7 / (2·count^1.1).
func UniquenessSeries(ix *BucketIndex) Series {
	out := make(Series, 0, len(ix.Messages))
	for bucket, freq := range ix.Messages {
		total := 0
		for _, n := range freq {
			total += n
		}
		score := math.Pow(float64(len(freq)), 2.7) / (2 * math.Pow(float64(total), 1.1))
		out = append(out, Entry{Key: Key{Bucket: bucket}, Value: round3(score)})
	}
	return out
}

// EmoteScoreSeries scores buckets by how many distinct messages carry at
// least one known emote token, scaled against the emote-free remainder:
// floor(e / sqrt(max(1,w) / distinct)).
func EmoteScoreSeries(ix *BucketIndex, emotes map[string]struct{}) Series {
	return emoteWordSeries(ix, emotes, false)
}

// WordScoreSeries is symmetric to EmoteScoreSeries with the emote and
// non-emote counts swapped.
func WordScoreSeries(ix *BucketIndex, emotes map[string]struct{}) Series {
	return emoteWordSeries(ix, emotes, true)
}

func emoteWordSeries(ix *BucketIndex, emotes map[string]struct{}, swap bool) Series {
	out := make(Series, 0, len(ix.Messages))
	for bucket, freq := range ix.Messages {
		emoteCount := 0
		for message := range freq {
			if containsEmote(message, emotes) {
				emoteCount++
			}
		}
		distinct := len(freq)
		wordCount := distinct - emoteCount
		e, w := float64(emoteCount), float64(wordCount)
		if swap {
			e, w = w, e
		}
		score := math.Floor(e / math.Sqrt(math.Max(1, w)/float64(distinct)))
		out = append(out, Entry{Key: Key{Bucket: bucket}, Value: score})
	}
	return out
}

func containsEmote(message string, emotes map[string]struct{}) bool {
	for _, token := range uniqueFields(message) {
		if _, ok := emotes[token]; ok {
			return true
		}
	}
	return false
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
