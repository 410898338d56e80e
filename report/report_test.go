package report

import (
	"strings"
	"testing"

	"github.com/onnwee/vod-moments/backend/analyze"
)

func testOptions() Options {
	return Options{
		VODID:    "123456",
		Title:    "big stream",
		Channel:  "streamer",
		Interval: 30,
		MsgLimit: 2,
		TxtLimit: 5,
	}
}

func TestLink(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{0, "https://www.twitch.tv/videos/123?t=0h0m0s"},
		{90, "https://www.twitch.tv/videos/123?t=0h1m30s"},
		{3725, "https://www.twitch.tv/videos/123?t=1h2m5s"},
	}
	for _, c := range cases {
		if got := Link("123", c.seconds); got != c.want {
			t.Errorf("Link(123, %d) = %q, want %q", c.seconds, got, c.want)
		}
	}
}

func TestSnippet(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"LUL", "LUL"},
		{"exactly", "exactly"},
		{"hello there", "hello t..."},
	}
	for _, c := range cases {
		if got := Snippet(c.in); got != c.want {
			t.Errorf("Snippet(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPresetBuiltin(t *testing.T) {
	res := &analyze.PresetResult{
		Preset: "spam",
		Label:  "spam score",
		Filtered: analyze.Series{
			{Key: analyze.Key{Bucket: 90, Message: "WOW REALLY"}, Value: 12.5},
			{Key: analyze.Key{Bucket: 300}, Value: 8},
			{Key: analyze.Key{Bucket: 600}, Value: 7},
		},
		Total: 40,
	}
	block := Preset(testOptions(), res)
	if block == nil {
		t.Fatal("Preset() = nil")
	}
	wantText := strings.Join([]string{
		"Top moments [30s] (spam score) in streamer/123456.txt (big stream):",
		"90s (00:01:30) [WOW REA...]: 12.5 - https://www.twitch.tv/videos/123456?t=0h1m30s",
		"300s (00:05:00): 8 - https://www.twitch.tv/videos/123456?t=0h5m0s",
		"600s (00:10:00): 7 - https://www.twitch.tv/videos/123456?t=0h10m0s",
	}, "\n")
	if block.Text != wantText {
		t.Errorf("text output:\n%s\nwant:\n%s", block.Text, wantText)
	}
	// Discord output is capped at MsgLimit and must not carry a total
	// footer for a built-in preset.
	lines := strings.Split(block.Discord, "\n")
	if len(lines) != 3 {
		t.Fatalf("discord output has %d lines, want 3:\n%s", len(lines), block.Discord)
	}
	if lines[0] != "**Top moments [30s] (spam score) in streamer/123456.txt** (*big stream*):" {
		t.Errorf("discord header = %q", lines[0])
	}
	want := "90s (**00:01:30**) `[WOW REA...]`: *12.5* - <https://www.twitch.tv/videos/123456?t=0h1m30s>"
	if lines[1] != want {
		t.Errorf("discord entry = %q, want %q", lines[1], want)
	}
}

func TestPresetCustomTotalFooter(t *testing.T) {
	res := &analyze.PresetResult{
		Preset:   "clutch",
		Label:    `preset "clutch"`,
		Filtered: analyze.Series{{Key: analyze.Key{Bucket: 60}, Value: 15}},
		Total:    42,
	}
	block := Preset(testOptions(), res)
	if block == nil {
		t.Fatal("Preset() = nil")
	}
	if !strings.HasPrefix(block.Text, `Top "clutch" moments [30s] in streamer/123456.txt`) {
		t.Errorf("custom header wrong:\n%s", block.Text)
	}
	if !strings.HasSuffix(block.Text, "Total messages matching query in 123456.txt: 42") {
		t.Errorf("missing total footer:\n%s", block.Text)
	}
	if !strings.HasSuffix(block.Discord, "**Total messages matching query in 123456.txt: 42**") {
		t.Errorf("missing discord total footer:\n%s", block.Discord)
	}
}

func TestPresetEmpty(t *testing.T) {
	if got := Preset(testOptions(), nil); got != nil {
		t.Errorf("Preset(nil) = %v", got)
	}
	res := &analyze.PresetResult{Preset: "all", Label: "all messages"}
	if got := Preset(testOptions(), res); got != nil {
		t.Errorf("Preset(empty) = %v", got)
	}
}

func TestCondenseShrinksTextLimit(t *testing.T) {
	opts := testOptions()
	opts.Condense = true
	var series analyze.Series
	for i := range 5 {
		series = append(series, analyze.Entry{Key: analyze.Key{Bucket: i * 120}, Value: float64(20 - i)})
	}
	res := &analyze.PresetResult{Preset: "all", Label: "all messages", Filtered: series}
	block := Preset(opts, res)
	if got := strings.Count(block.Text, "\n"); got != 2 {
		t.Errorf("condensed text has %d entries, want 2:\n%s", got, block.Text)
	}

	// Extend re-enables the full text limit.
	opts.Extend = true
	block = Preset(opts, res)
	if got := strings.Count(block.Text, "\n"); got != 5 {
		t.Errorf("extended text has %d entries, want 5:\n%s", got, block.Text)
	}
}

func TestAggregateBlock(t *testing.T) {
	agg := analyze.Series{
		{Key: analyze.Key{Bucket: 30}, Value: 1.207},
		{Key: analyze.Key{Bucket: 0}, Value: 9.16},
	}
	block := AggregateBlock(testOptions(), agg)
	if block == nil {
		t.Fatal("AggregateBlock() = nil")
	}
	if !strings.HasPrefix(block.Text, "Top moments (aggregate): in streamer/123456.txt (big stream):") {
		t.Errorf("aggregate header wrong:\n%s", block.Text)
	}
	if !strings.Contains(block.Text, "30s (00:00:30): 1.207 - ") {
		t.Errorf("missing best entry:\n%s", block.Text)
	}
}

func TestDigest(t *testing.T) {
	opts := testOptions()
	opts.Condense = true
	results := map[string]analyze.Series{
		"all":  {{Key: analyze.Key{Bucket: 300}, Value: 50}, {Key: analyze.Key{Bucket: 90}, Value: 30}},
		"spam": {{Key: analyze.Key{Bucket: 90, Message: "WOW"}, Value: 12}},
	}
	got := Digest(opts, results, []string{"all", "spam"})
	want := strings.Join([]string{
		"90s (00:01:30): all, spam - https://www.twitch.tv/videos/123456?t=0h1m30s",
		"300s (00:05:00): all - https://www.twitch.tv/videos/123456?t=0h5m0s",
	}, "\n")
	if got != want {
		t.Errorf("Digest() =\n%s\nwant:\n%s", got, want)
	}
}

func TestDigestEmpty(t *testing.T) {
	if got := Digest(testOptions(), nil, []string{"all"}); got != "" {
		t.Errorf("Digest(nil) = %q", got)
	}
}
