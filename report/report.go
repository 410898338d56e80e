// Package report shapes analysis results into human-readable output: plain
// text blocks for transcript exports and Markdown-flavored blocks for
// Discord messages. Every entry links straight into the VOD at the moment
// it describes.
package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/onnwee/vod-moments/backend/analyze"
	"github.com/onnwee/vod-moments/backend/chatlog"
)

// Options controls how result lists are rendered.
type Options struct {
	VODID    string
	Title    string
	Channel  string
	Interval int  // bucket width, shown in preset headers
	MsgLimit int  // max entries per Discord block
	TxtLimit int  // max entries per text block
	Condense bool // shrink text blocks to the Discord limit
	Extend   bool // custom presets included; disables condensing
}

// Block is one preset's rendered output in both flavors. Either side may
// be empty when the preset produced nothing.
type Block struct {
	Text    string
	Discord string
}

// Link builds a VOD deep link that opens playback at the given offset.
func Link(vodID string, seconds int) string {
	h, m, s := chatlog.Clock(seconds)
	return fmt.Sprintf("https://www.twitch.tv/videos/%s?t=%dh%dm%ds", vodID, h, m, s)
}

// Snippet shortens a matched message for inline display.
func Snippet(message string) string {
	if len(message) > 7 {
		return message[:7] + "..."
	}
	return message
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// textLimit is the number of entries a text block may carry. Condensing
// shrinks it to the Discord limit unless custom presets are in play.
func (o Options) textLimit() int {
	if o.Condense && !o.Extend {
		return o.MsgLimit
	}
	return o.TxtLimit
}

// header renders the block's first line for a preset label.
func (o Options) header(label string, bold bool) string {
	if bold {
		return fmt.Sprintf("**%s in %s/%s.txt** (*%s*):", label, o.Channel, o.VODID, o.Title)
	}
	return fmt.Sprintf("%s in %s/%s.txt (%s):", label, o.Channel, o.VODID, o.Title)
}

func (o Options) presetLabel(res *analyze.PresetResult) string {
	if _, builtin := analyze.PresetLabel(res.Preset); builtin {
		return fmt.Sprintf("Top moments [%ds] (%s)", o.Interval, res.Label)
	}
	return fmt.Sprintf("Top %q moments [%ds]", res.Preset, o.Interval)
}

// Preset renders one preset's filtered results. Custom presets carry a
// trailing total-match count; built-ins don't, since every message counts
// toward them.
func Preset(opts Options, res *analyze.PresetResult) *Block {
	if res == nil || len(res.Filtered) == 0 {
		return nil
	}
	_, builtin := analyze.PresetLabel(res.Preset)
	text, discord := entries(opts, res.Filtered)
	if len(text) == 0 {
		return nil
	}
	label := opts.presetLabel(res)
	text = append([]string{opts.header(label, false)}, text...)
	discord = append([]string{opts.header(label, true)}, discord...)
	if !builtin && res.Total > 0 {
		text = append(text, fmt.Sprintf("Total messages matching query in %s.txt: %d", opts.VODID, res.Total))
		discord = append(discord, fmt.Sprintf("**Total messages matching query in %s.txt: %d**", opts.VODID, res.Total))
	}
	return &Block{Text: strings.Join(text, "\n"), Discord: strings.Join(discord, "\n")}
}

// AggregateBlock renders the composite ranking. The series comes in
// ascending by composite placement, best first.
func AggregateBlock(opts Options, agg analyze.Series) *Block {
	if len(agg) == 0 {
		return nil
	}
	text, discord := entries(opts, agg)
	if len(text) == 0 {
		return nil
	}
	const label = "Top moments (aggregate):"
	text = append([]string{opts.header(label, false)}, text...)
	discord = append([]string{opts.header(label, true)}, discord...)
	return &Block{Text: strings.Join(text, "\n"), Discord: strings.Join(discord, "\n")}
}

func entries(opts Options, s analyze.Series) (text, discord []string) {
	limit := opts.textLimit()
	for i, e := range s {
		if i == limit {
			break
		}
		sec := e.Key.Bucket
		stamp := chatlog.Timestamp(float64(sec), false)
		link := Link(opts.VODID, sec)
		value := formatValue(e.Value)
		snippet := Snippet(e.Key.Message)
		textColl, discordColl := "", ""
		if snippet != "" {
			textColl = fmt.Sprintf(" [%s]", snippet)
			discordColl = fmt.Sprintf(" `[%s]`", snippet)
		}
		text = append(text, fmt.Sprintf("%ds (%s)%s: %s - %s", sec, stamp, textColl, value, link))
		if i < opts.MsgLimit {
			discord = append(discord, fmt.Sprintf("%ds (**%s**)%s: *%s* - <%s>", sec, stamp, discordColl, value, link))
		}
	}
	return text, discord
}

// Digest condenses the default presets' results into one text block: each
// surviving timestamp listed once with the presets that flagged it. Preset
// names appear in the given evaluation order.
func Digest(opts Options, results map[string]analyze.Series, order []string) string {
	limit := opts.textLimit()
	times := make(map[int][]string)
	for _, name := range order {
		filtered, ok := results[name]
		if !ok {
			continue
		}
		for i, e := range filtered {
			if i == limit {
				break
			}
			times[e.Key.Bucket] = append(times[e.Key.Bucket], name)
		}
	}
	if len(times) == 0 {
		return ""
	}
	buckets := make([]int, 0, len(times))
	for b := range times {
		buckets = append(buckets, b)
	}
	sort.Ints(buckets)
	lines := make([]string, 0, len(buckets))
	for _, b := range buckets {
		lines = append(lines, fmt.Sprintf("%ds (%s): %s - %s",
			b, chatlog.Timestamp(float64(b), false), strings.Join(times[b], ", "), Link(opts.VODID, b)))
	}
	return strings.Join(lines, "\n")
}
