package analyze

import (
	"math"
	"testing"
)

func indexWith(bucket int, messages map[string]int, users ...string) *BucketIndex {
	ix := NewBucketIndex()
	i := 0
	for message, count := range messages {
		for range count {
			user := "someone"
			if len(users) > 0 {
				user = users[i%len(users)]
			}
			ix.add(bucket, user, message)
			i++
		}
	}
	return ix
}

func seriesValue(t *testing.T, s Series, k Key) float64 {
	t.Helper()
	for _, e := range s {
		if e.Key == k {
			return e.Value
		}
	}
	t.Fatalf("key %v not found in %v", k, s)
	return 0
}

func TestSpamSeries(t *testing.T) {
	// 10 total messages, 2 distinct: 100 / (2*2^1.1) ~= 23.326
	ix := indexWith(30, map[string]int{"gg": 6, "lol": 4})
	got := seriesValue(t, SpamSeries(ix), Key{Bucket: 30})
	want := math.Round(100/(2*math.Pow(2, 1.1))*1000) / 1000
	if got != want {
		t.Errorf("spam score = %v, want %v", got, want)
	}
	if math.Abs(got-23.33) > 0.01 {
		t.Errorf("spam score = %v, want ~23.33", got)
	}
}

func TestUniquenessSeries(t *testing.T) {
	ix := indexWith(0, map[string]int{"a": 1, "b": 1, "c": 1, "d": 2})
	// 4 distinct, 5 total: 4^2.7 / (2*5^1.1)
	want := math.Round(math.Pow(4, 2.7)/(2*math.Pow(5, 1.1))*1000) / 1000
	got := seriesValue(t, UniquenessSeries(ix), Key{Bucket: 0})
	if got != want {
		t.Errorf("uniqueness score = %v, want %v", got, want)
	}
}

func TestCollectiveSeries(t *testing.T) {
	ix := indexWith(30, map[string]int{"gg": 4, "lol": 2})
	s := CollectiveSeries(ix)
	if len(s) != 2 {
		t.Fatalf("collective series has %d entries, want 2: %v", len(s), s)
	}
	if got := seriesValue(t, s, Key{Bucket: 30, Message: "gg"}); got != 4 {
		t.Errorf("(30, gg) = %v, want 4", got)
	}
	if got := seriesValue(t, s, Key{Bucket: 30, Message: "lol"}); got != 2 {
		t.Errorf("(30, lol) = %v, want 2", got)
	}
}

func TestCountAndUserSeries(t *testing.T) {
	ix := NewBucketIndex()
	ix.add(0, "alice", "hi")
	ix.add(0, "bob", "hi")
	ix.add(0, "alice", "again")
	ix.add(60, "carol", "yo")
	counts := CountSeries(ix)
	if got := seriesValue(t, counts, Key{Bucket: 0}); got != 3 {
		t.Errorf("count(0) = %v, want 3", got)
	}
	users := UniqueUserSeries(ix)
	if got := seriesValue(t, users, Key{Bucket: 0}); got != 2 {
		t.Errorf("users(0) = %v, want 2", got)
	}
	if got := seriesValue(t, users, Key{Bucket: 60}); got != 1 {
		t.Errorf("users(60) = %v, want 1", got)
	}
}

func TestEmoteAndWordScores(t *testing.T) {
	emotes := map[string]struct{}{"PogChamp": {}}
	ix := indexWith(0, map[string]int{"PogChamp": 3, "hello": 1, "world": 1})
	// 3 distinct messages, 1 with an emote, 2 without.
	if got := seriesValue(t, EmoteScoreSeries(ix, emotes), Key{Bucket: 0}); got != 1 {
		// floor(1 / sqrt(2/3)) = 1
		t.Errorf("emote score = %v, want 1", got)
	}
	if got := seriesValue(t, WordScoreSeries(ix, emotes), Key{Bucket: 0}); got != 3 {
		// floor(2 / sqrt(1/3)) = 3
		t.Errorf("word score = %v, want 3", got)
	}
}

func TestEmoteScoreAllEmotes(t *testing.T) {
	// w=0 clamps to 1 inside the sqrt; preserved from the source formula.
	emotes := map[string]struct{}{"Kappa": {}}
	ix := indexWith(0, map[string]int{"Kappa": 5, "Kappa Kappa": 1})
	// 2 distinct, both emote: floor(2 / sqrt(1/2)) = floor(2.828) = 2
	if got := seriesValue(t, EmoteScoreSeries(ix, emotes), Key{Bucket: 0}); got != 2 {
		t.Errorf("emote score = %v, want 2", got)
	}
}
