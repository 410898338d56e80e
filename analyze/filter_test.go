package analyze

import "testing"

func TestFilterPruneAndSpace(t *testing.T) {
	// interval=30s, threshold=5, spacing=60s: 205 pruned, 15 loses the
	// spacing conflict against the higher-scoring bucket 0, 90 and 200
	// survive.
	series := Series{
		{Key: Key{Bucket: 0}, Value: 50},
		{Key: Key{Bucket: 15}, Value: 48},
		{Key: Key{Bucket: 90}, Value: 40},
		{Key: Key{Bucket: 200}, Value: 6},
		{Key: Key{Bucket: 205}, Value: 4},
	}
	got := Filter(series, 5, 60)
	want := Series{
		{Key: Key{Bucket: 0}, Value: 50},
		{Key: Key{Bucket: 90}, Value: 40},
		{Key: Key{Bucket: 200}, Value: 6},
	}
	if len(got) != len(want) {
		t.Fatalf("Filter returned %d entries, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFilterInvariants(t *testing.T) {
	series := Series{
		{Key: Key{Bucket: 300}, Value: 90},
		{Key: Key{Bucket: 0}, Value: 80},
		{Key: Key{Bucket: 330}, Value: 70},
		{Key: Key{Bucket: 60}, Value: 12},
		{Key: Key{Bucket: 600}, Value: 11},
		{Key: Key{Bucket: 630}, Value: 3},
	}
	minimum, spacing := 10.0, 90
	got := Filter(series, minimum, spacing)
	for _, e := range got {
		if e.Value < minimum {
			t.Errorf("kept entry %v below minimum %v", e, minimum)
		}
	}
	for i := range got {
		for j := i + 1; j < len(got); j++ {
			d := got[i].Key.Bucket - got[j].Key.Bucket
			if d < 0 {
				d = -d
			}
			if d < spacing {
				t.Errorf("kept buckets %d and %d closer than %ds", got[i].Key.Bucket, got[j].Key.Bucket, spacing)
			}
		}
	}
}

func TestFilterPairedKeysSpacePerMessage(t *testing.T) {
	// Identical messages are spaced; distinct messages may sit arbitrarily
	// close in time.
	series := Series{
		{Key: Key{Bucket: 0, Message: "gg"}, Value: 9},
		{Key: Key{Bucket: 0, Message: "lol"}, Value: 8},
		{Key: Key{Bucket: 30, Message: "gg"}, Value: 7},
		{Key: Key{Bucket: 120, Message: "gg"}, Value: 6},
	}
	got := Filter(series, 0, 60)
	want := Series{
		{Key: Key{Bucket: 0, Message: "gg"}, Value: 9},
		{Key: Key{Bucket: 0, Message: "lol"}, Value: 8},
		{Key: Key{Bucket: 120, Message: "gg"}, Value: 6},
	}
	if len(got) != len(want) {
		t.Fatalf("Filter returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFilterZeroThresholdZeroSpacingIsNoOp(t *testing.T) {
	// The aggregate (sorted ascending, lower is better) must pass through
	// unchanged, entries and order both.
	agg := Aggregate(map[string]Series{
		"a": {{Key: Key{Bucket: 0}, Value: 4}, {Key: Key{Bucket: 30}, Value: 2}},
		"b": {{Key: Key{Bucket: 30}, Value: 9}},
	}, 30, 60)
	got := Filter(agg, 0, 0)
	if len(got) != len(agg) {
		t.Fatalf("no-op filter changed length: %d != %d", len(got), len(agg))
	}
	for i := range agg {
		if got[i] != agg[i] {
			t.Errorf("entry %d changed: %v != %v", i, got[i], agg[i])
		}
	}
}
