package analyze

// Filter reduces a score series, already sorted descending by value, into
// a short notable-moment list:
//
//  1. Prune: drop entries below minimum.
//  2. Space: walk the remainder in order, greedily keeping an entry only
//     if its bucket is at least spacing seconds from every kept bucket.
//
// Because the input is value-descending, higher-scoring entries always win
// contested spacing conflicts; the selection is greedy on purpose (peak
// score beats even distribution). For paired (bucket, message) keys the
// spacing constraint applies only between entries with identical message
// text, so distinct spam messages may land close together in time.
func Filter(s Series, minimum float64, spacing int) Series {
	kept := make(Series, 0, len(s))
	for _, e := range s {
		if e.Value < minimum {
			continue
		}
		if clears(kept, e.Key, spacing) {
			kept = append(kept, e)
		}
	}
	return kept
}

func clears(kept Series, k Key, spacing int) bool {
	for _, prev := range kept {
		if k.Message == "" {
			if prev.Key.Message != "" {
				continue
			}
		} else if prev.Key.Message != k.Message {
			continue
		}
		if abs(k.Bucket-prev.Key.Bucket) < spacing {
			return false
		}
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
