package analyze

import "math"

// Aggregate combines per-preset raw score series (independently sorted
// descending, not yet filtered) into one composite ranking over the full
// video duration. Each series is converted to 1-based placements; every
// bucket from 0 through endSec (stepped by interval, including buckets
// with no events) is scored as the mean of placement^0.5 across presets,
// rounded to 3 decimals. The square root emphasizes buckets that place
// consistently well across several presets over a single-preset outlier.
// The result is sorted ascending: lower composite is better.
func Aggregate(seriesByPreset map[string]Series, interval, endSec int) Series {
	if len(seriesByPreset) == 0 || interval <= 0 {
		return nil
	}
	placements := make([]map[Key]int, 0, len(seriesByPreset))
	for _, s := range seriesByPreset {
		sorted := s.Clone()
		sorted.SortDescending()
		placements = append(placements, Placements(sorted))
	}

	out := make(Series, 0, endSec/interval+1)
	n := float64(len(placements))
	for t := 0; t <= endSec; t += interval {
		k := Key{Bucket: t}
		var sum float64
		for _, places := range placements {
			place, ok := places[k]
			if !ok {
				place = MaxPlacement
			}
			sum += math.Sqrt(float64(place))
		}
		out = append(out, Entry{Key: k, Value: round3(sum / n)})
	}
	out.SortAscending()
	return out
}
