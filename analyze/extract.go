package analyze

import (
	"iter"
	"regexp"
	"strconv"
	"strings"
)

var (
	// linePattern matches one transcript record: [HH:MM:SS.mmm] username: message
	linePattern = regexp.MustCompile(`^\[([\d:]*)\.\d+\] ([a-z\d_]*): (.*)$`)
	// commandPattern matches bot-command messages like "!clip".
	commandPattern = regexp.MustCompile(`^!\w+`)
)

var subscriptionTerms = map[string]struct{}{
	"subscribed": {}, "gifted": {}, "gifting": {},
	"paying": {}, "continuing": {}, "converted": {},
}

// isSubscriptionMessage reports whether a message is a Twitch subscription
// system message. Twitch stores these as regular chat lines in VOD replays
// with a predictable shape: the display name leads, a subscription term
// appears somewhere, and the sentence is punctuated.
func isSubscriptionMessage(user, message string) bool {
	words := strings.Fields(message)
	if len(words) == 0 {
		return false
	}
	if strings.ToLower(words[0]) != user {
		return false
	}
	hasTerm := false
	for _, w := range words {
		if _, ok := subscriptionTerms[w]; ok {
			hasTerm = true
			break
		}
	}
	return hasTerm && strings.ContainsAny(message, ".!")
}

// stripUnprintable drops non-printable runes (anything outside printable
// ASCII and common whitespace) and trims surrounding whitespace. VOD chat
// replays carry invisible tag characters that would defeat the caps and
// query checks.
func stripUnprintable(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 0x20 && r < 0x7f) || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// BucketIndex holds the three co-indexed per-bucket accumulators built
// during one (video, preset) extraction pass, plus the total accepted
// event count. It is owned by the extractor until handed to the metric
// functions and never mutated afterwards.
type BucketIndex struct {
	Counts   map[int]int
	Users    map[int]map[string]struct{}
	Messages map[int]map[string]int
	Total    int
	// Lines counts every transcript line consumed in the pass, matched
	// or not.
	Lines int
}

// NewBucketIndex returns an empty index.
func NewBucketIndex() *BucketIndex {
	return &BucketIndex{
		Counts:   make(map[int]int),
		Users:    make(map[int]map[string]struct{}),
		Messages: make(map[int]map[string]int),
	}
}

func (ix *BucketIndex) add(bucket int, user, message string) {
	ix.Total++
	ix.Counts[bucket]++
	set, ok := ix.Users[bucket]
	if !ok {
		set = make(map[string]struct{})
		ix.Users[bucket] = set
	}
	set[user] = struct{}{}
	freq, ok := ix.Messages[bucket]
	if !ok {
		freq = make(map[string]int)
		ix.Messages[bucket] = freq
	}
	freq[message]++
}

// Extractor parses raw transcript lines into bucketed chat events for one
// preset evaluation pass.
type Extractor struct {
	// Interval is the bucket width in seconds.
	Interval int
	// Bots holds excluded usernames (lowercase).
	Bots map[string]struct{}
	// Accept is an optional per-channel predicate applied before the
	// preset match rule; nil accepts everything.
	Accept AcceptFunc
	// Emotes is the known-emote set, passed to Accept.
	Emotes map[string]struct{}
	// Match is the active preset's message-matching rule.
	Match Matcher
}

// Run consumes transcript lines and accumulates the bucket index. Lines
// that don't match the record shape are skipped silently: partial lines
// are common at file boundaries and are not an error.
func (e *Extractor) Run(lines iter.Seq2[string, error]) (*BucketIndex, error) {
	ix := NewBucketIndex()
	for line, err := range lines {
		if err != nil {
			return nil, err
		}
		ix.Lines++
		m := linePattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		timeSec, ok := parseClock(m[1])
		if !ok {
			continue
		}
		user, message := m[2], m[3]
		if !e.check(timeSec, user, message) {
			continue
		}
		// The index keeps the raw message; the filters above operate on a
		// printable-stripped copy.
		bucket := timeSec - (timeSec % e.Interval)
		ix.add(bucket, user, message)
	}
	return ix, nil
}

// check applies the exclusion filters and the preset match rule.
func (e *Extractor) check(timeSec int, user, message string) bool {
	message = stripUnprintable(message)
	if _, ok := e.Bots[user]; ok {
		return false
	}
	if commandPattern.MatchString(message) {
		return false
	}
	if isSubscriptionMessage(user, message) {
		return false
	}
	if e.Accept != nil && !e.Accept(timeSec, user, message, e.Emotes) {
		return false
	}
	return e.Match.Match(message)
}

// parseClock converts a colon-separated HH:MM:SS clock (as captured from a
// transcript line, milliseconds already removed) to seconds.
func parseClock(ts string) (int, bool) {
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0, false
	}
	var total int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}
