package analyze

import (
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/onnwee/vod-moments/backend/telemetry"
)

func transcript(lines ...string) LinesFunc {
	return func() iter.Seq2[string, error] {
		return linesFrom(lines...)
	}
}

func TestRunEvaluatePreset(t *testing.T) {
	lines := transcript(
		"[00:00:01.000] alice: hello",
		"[00:00:02.000] bob: hello",
		"[00:00:05.000] carol: hello",
		"[00:01:01.000] alice: gg",
	)
	r := NewRun("123", Params{Interval: 30, Minimum: 2, Spacing: 60}, nil, nil, nil, lines)

	res, err := r.EvaluatePreset("all", nil)
	if err != nil {
		t.Fatalf("EvaluatePreset(all): %v", err)
	}
	if res.Total != 4 {
		t.Errorf("Total = %d, want 4", res.Total)
	}
	if len(res.Raw) != 2 || res.Raw[0].Key.Bucket != 0 || res.Raw[0].Value != 3 {
		t.Errorf("raw = %v, want bucket 0 first with 3 messages", res.Raw)
	}
	// Bucket 60 has a single message, below minimum 2.
	if len(res.Filtered) != 1 || res.Filtered[0].Key.Bucket != 0 {
		t.Errorf("filtered = %v, want only bucket 0", res.Filtered)
	}
	if r.EndSec() != 60 {
		t.Errorf("EndSec = %d, want 60", r.EndSec())
	}
}

func TestRunInvalidPreset(t *testing.T) {
	r := NewRun("123", Params{Interval: 30}, nil, nil, nil, transcript())
	if _, err := r.EvaluatePreset("bogus", nil); !errors.Is(err, ErrInvalidPreset) {
		t.Errorf("err = %v, want ErrInvalidPreset", err)
	}
}

func TestRunEmotePresetNeedsEmotes(t *testing.T) {
	r := NewRun("123", Params{Interval: 30}, nil, nil, nil, transcript())
	for _, name := range []string{"emote", "word"} {
		if _, err := r.EvaluatePreset(name, nil); !errors.Is(err, ErrEmotesRequired) {
			t.Errorf("EvaluatePreset(%s) err = %v, want ErrEmotesRequired", name, err)
		}
	}
}

func TestRunNoMatchesIsNotAnError(t *testing.T) {
	r := NewRun("123", Params{Interval: 30}, nil, nil, nil, transcript(
		"[00:00:01.000] alice: hello",
	))
	res, err := r.EvaluatePreset("custom", []Query{{Text: "never said"}})
	if err != nil {
		t.Fatalf("EvaluatePreset: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result for a preset with no matches, got %+v", res)
	}
}

func TestRunCustomPresetCounts(t *testing.T) {
	lines := transcript(
		"[00:00:01.000] alice: that was clutch",
		"[00:00:02.000] bob: CLUTCH",
		"[00:00:03.000] carol: boring",
	)
	r := NewRun("123", Params{Interval: 30}, nil, nil, nil, lines)
	res, err := r.EvaluatePreset("clutch moments", []Query{{Text: "clutch", ExactWord: true}})
	if err != nil {
		t.Fatalf("EvaluatePreset: %v", err)
	}
	if res.Total != 2 {
		t.Errorf("Total = %d, want 2", res.Total)
	}
	if got := seriesValue(t, res.Raw, Key{Bucket: 0}); got != 2 {
		t.Errorf("raw(0) = %v, want 2", got)
	}
}

func TestAggregateDefaults(t *testing.T) {
	lines := transcript(
		"[00:00:01.000] alice: gg",
		"[00:00:02.000] bob: gg",
		"[00:01:01.000] alice: lol",
	)
	r := NewRun("123", Params{Interval: 30}, nil, nil, nil, lines)

	if _, err := r.EvaluatePreset("all", nil); err != nil {
		t.Fatalf("EvaluatePreset(all): %v", err)
	}
	// A single retained preset is not enough to aggregate.
	if s := r.AggregateDefaults(); s != nil {
		t.Errorf("AggregateDefaults with one preset = %v, want nil", s)
	}

	if _, err := r.EvaluatePreset("users", nil); err != nil {
		t.Fatalf("EvaluatePreset(users): %v", err)
	}
	agg := r.AggregateDefaults()
	if agg == nil {
		t.Fatal("AggregateDefaults returned nil with two presets")
	}
	// Horizon is the last bucket of the all-messages preset.
	if len(agg) != 3 {
		t.Fatalf("aggregate covers %d buckets, want 3 (0,30,60): %v", len(agg), agg)
	}
	for i := 1; i < len(agg); i++ {
		if agg[i].Value < agg[i-1].Value {
			t.Errorf("aggregate not ascending at %d: %v", i, agg)
		}
	}
	if agg[0].Key.Bucket != 0 {
		t.Errorf("best bucket = %d, want 0", agg[0].Key.Bucket)
	}
}

func TestBuiltinPresets(t *testing.T) {
	names := BuiltinPresets()
	if len(names) != 10 || names[0] != "all" {
		t.Fatalf("unexpected builtin presets: %v", names)
	}
	for _, n := range names {
		if _, ok := PresetLabel(n); !ok {
			t.Errorf("missing label for %q", n)
		}
	}
	if _, ok := PresetLabel("custom"); ok {
		t.Error("custom names must not have builtin labels")
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestEvaluatePresetRecordsThroughput(t *testing.T) {
	telemetry.Init()
	linesBefore := counterValue(t, telemetry.LinesParsed)
	eventsBefore := counterValue(t, telemetry.EventsAccepted)

	lines := transcript(
		"[00:00:01.000] alice: hello",
		"[00:00:02.000] bob: hello",
		"not a transcript line",
		"[00:00:03.000] carol: hello",
	)
	r := NewRun("123", Params{Interval: 30}, nil, nil, nil, lines)
	res, err := r.EvaluatePreset("all", nil)
	if err != nil {
		t.Fatalf("EvaluatePreset: %v", err)
	}
	if res.Total != 3 {
		t.Fatalf("Total = %d, want 3", res.Total)
	}

	// Every consumed line counts, matched or not; only accepted events do.
	if got := counterValue(t, telemetry.LinesParsed) - linesBefore; got != 4 {
		t.Errorf("lines parsed delta = %v, want 4", got)
	}
	if got := counterValue(t, telemetry.EventsAccepted) - eventsBefore; got != 3 {
		t.Errorf("events accepted delta = %v, want 3", got)
	}
}

func TestChannelFilterRegistry(t *testing.T) {
	name := fmt.Sprintf("chan-%d", 42)
	RegisterChannelFilter(name, func(timeSec int, user, message string, emotes map[string]struct{}) bool {
		return timeSec > 0
	})
	f := ChannelFilter(name)
	if f == nil {
		t.Fatal("registered filter not found")
	}
	if f(0, "a", "b", nil) || !f(1, "a", "b", nil) {
		t.Error("filter does not apply its predicate")
	}
	if ChannelFilter("nope") != nil {
		t.Error("unknown channel should have no filter")
	}
}
