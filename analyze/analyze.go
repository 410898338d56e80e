package analyze

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/onnwee/vod-moments/backend/telemetry"
)

var (
	// ErrInvalidPreset marks a preset name that is neither built-in nor
	// accompanied by queries. Fatal to that preset's evaluation only.
	ErrInvalidPreset = errors.New("invalid preset")
	// ErrEmotesRequired marks a preset that needs emote data when the
	// known-emote set is empty.
	ErrEmotesRequired = errors.New("emote database required")
)

// builtinOrder fixes the evaluation order of the built-in presets.
var builtinOrder = []string{
	"all", "collective", "users", "spam", "unique",
	"regulars", "caps", "caps-only", "emote", "word",
}

var builtinLabels = map[string]string{
	"all":        "all messages",
	"collective": "collective spam",
	"users":      "unique users",
	"spam":       "spam score",
	"unique":     "unique message score",
	"regulars":   "regulars score",
	"caps":       "caps",
	"caps-only":  "caps only",
	"emote":      "emote score",
	"word":       "word score",
}

// BuiltinPresets returns the built-in preset names in evaluation order.
func BuiltinPresets() []string {
	out := make([]string, len(builtinOrder))
	copy(out, builtinOrder)
	return out
}

// PresetLabel returns the display label for a built-in preset name.
func PresetLabel(name string) (string, bool) {
	label, ok := builtinLabels[name]
	return label, ok
}

// Params are the scalar knobs of one analysis run.
type Params struct {
	// Interval is the bucket width in seconds.
	Interval int
	// Minimum prunes raw scores below this value.
	Minimum float64
	// Spacing is the minimum distance in seconds between kept buckets.
	Spacing int
}

// LinesFunc yields a fresh pass over the video's transcript lines. Each
// preset evaluation consumes one full pass.
type LinesFunc func() iter.Seq2[string, error]

// PresetResult is the outcome of one preset evaluation.
type PresetResult struct {
	Preset   string
	Label    string
	Raw      Series // sorted descending, unfiltered
	Filtered Series
	Total    int // accepted events across the whole transcript
}

// Run holds the state of one video's analysis across preset evaluations:
// the shared read-only inputs, and the raw default-preset series retained
// for rank aggregation. It is not safe for concurrent use.
type Run struct {
	VODID  string
	Params Params
	Bots   map[string]struct{}
	Emotes map[string]struct{}
	Accept AcceptFunc
	Lines  LinesFunc

	raw    map[string]Series
	endSec int
	logger *slog.Logger
}

// NewRun prepares an analysis run for one video.
func NewRun(vodID string, params Params, bots, emotes map[string]struct{}, accept AcceptFunc, lines LinesFunc) *Run {
	return &Run{
		VODID:  vodID,
		Params: params,
		Bots:   bots,
		Emotes: emotes,
		Accept: accept,
		Lines:  lines,
		raw:    make(map[string]Series),
		logger: slog.Default().With(slog.String("component", "analyze"), slog.String("vod_id", vodID)),
	}
}

// EvaluatePreset runs the full pipeline for one preset: extract, score,
// filter. A nil result with nil error means the preset produced nothing
// notable (not an error; logged and skipped in output). Built-in presets
// additionally retain their raw series for AggregateDefaults.
func (r *Run) EvaluatePreset(name string, queries []Query) (*PresetResult, error) {
	label, builtin := builtinLabels[name]
	if !builtin && len(queries) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPreset, name)
	}
	if !builtin {
		label = fmt.Sprintf("preset %q", name)
	}
	if (name == "emote" || name == "word") && len(r.Emotes) == 0 {
		return nil, fmt.Errorf("%w: preset %q", ErrEmotesRequired, name)
	}

	matcher, err := r.matcherFor(name, queries)
	if err != nil {
		return nil, err
	}
	ex := &Extractor{
		Interval: r.Params.Interval,
		Bots:     r.Bots,
		Accept:   r.Accept,
		Emotes:   r.Emotes,
		Match:    matcher,
	}
	ix, err := ex.Run(r.Lines())
	if err != nil {
		return nil, fmt.Errorf("extract %q: %w", name, err)
	}
	telemetry.AddCounter(telemetry.LinesParsed, ix.Lines)
	telemetry.AddCounter(telemetry.EventsAccepted, ix.Total)
	if ix.Total == 0 {
		r.logger.Info("no matching messages for preset", slog.String("preset", name))
		return nil, nil
	}

	raw := r.scoreFor(name, builtin, ix)
	if len(raw) == 0 {
		r.logger.Info("no results for preset", slog.String("preset", name))
		return nil, nil
	}
	raw.SortDescending()
	if builtin {
		r.raw[name] = raw.Clone()
		if name == "all" {
			for _, e := range raw {
				if e.Key.Bucket > r.endSec {
					r.endSec = e.Key.Bucket
				}
			}
		}
	}
	filtered := Filter(raw, r.Params.Minimum, r.Params.Spacing)
	if len(filtered) == 0 {
		r.logger.Info("no results above minimum for preset", slog.String("preset", name), slog.Float64("minimum", r.Params.Minimum))
	}
	return &PresetResult{Preset: name, Label: label, Raw: raw, Filtered: filtered, Total: ix.Total}, nil
}

func (r *Run) matcherFor(name string, queries []Query) (Matcher, error) {
	if len(queries) > 0 {
		return newQueryMatcher(queries, r.Emotes)
	}
	switch name {
	case "caps":
		return capsMatcher{emotes: r.Emotes}, nil
	case "caps-only":
		return capsMatcher{emotes: r.Emotes, strict: true}, nil
	default:
		return acceptAll{}, nil
	}
}

func (r *Run) scoreFor(name string, builtin bool, ix *BucketIndex) Series {
	if !builtin {
		return CountSeries(ix)
	}
	switch name {
	case "users":
		return UniqueUserSeries(ix)
	case "collective":
		return CollectiveSeries(ix)
	case "spam":
		return SpamSeries(ix)
	case "unique":
		return UniquenessSeries(ix)
	case "regulars":
		return RegularsSeries(ix)
	case "emote":
		return EmoteScoreSeries(ix, r.Emotes)
	case "word":
		return WordScoreSeries(ix, r.Emotes)
	default: // all, caps, caps-only
		return CountSeries(ix)
	}
}

// EndSec is the last observed bucket of the all-messages preset, used as
// the aggregation horizon.
func (r *Run) EndSec() int { return r.endSec }

// AggregateDefaults combines the retained default-preset raw series into
// one composite ranking. Returns nil unless at least two default presets
// produced results.
func (r *Run) AggregateDefaults() Series {
	if len(r.raw) < 2 {
		return nil
	}
	endSec := r.endSec
	if endSec == 0 {
		for _, s := range r.raw {
			for _, e := range s {
				if e.Key.Bucket > endSec {
					endSec = e.Key.Bucket
				}
			}
		}
	}
	return Aggregate(r.raw, r.Params.Interval, endSec)
}
