package analyze

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Matcher is the message-matching rule for one preset, resolved once per
// evaluation pass rather than re-dispatched per event.
type Matcher interface {
	Match(message string) bool
}

// Query is one custom preset query: either a bare emote code (Emote set,
// matched case-sensitive on word boundaries, and only if the code is in
// the known-emote set) or a text query with independent case-sensitivity
// and whole-word flags.
type Query struct {
	Text          string `json:"text"`
	Emote         bool   `json:"emote,omitempty"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
	ExactWord     bool   `json:"exact_word,omitempty"`
}

// acceptAll admits every event that survived the exclusion filters. The
// unconditional presets differ only in which metric consumes the indexes.
type acceptAll struct{}

func (acceptAll) Match(string) bool { return true }

// capsMatcher implements the caps and caps-only rules.
type capsMatcher struct {
	emotes map[string]struct{}
	strict bool // caps-only: any emote token rejects the message outright
}

func (m capsMatcher) Match(message string) bool {
	words := uniqueFields(message)
	if m.strict {
		for _, w := range words {
			if _, ok := m.emotes[w]; ok {
				return false
			}
		}
	} else {
		kept := words[:0]
		for _, w := range words {
			if _, ok := m.emotes[w]; !ok {
				kept = append(kept, w)
			}
		}
		message = strings.Join(kept, " ")
	}
	return isShouted(message)
}

// isShouted reports whether s is longer than one rune, entirely alphabetic,
// and entirely upper-case.
func isShouted(s string) bool {
	n := 0
	hasUpper := false
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
		n++
	}
	return n > 1 && hasUpper
}

// uniqueFields tokenizes on whitespace and deduplicates tokens, keeping
// first-seen order. Repeating the same shouted word doesn't change whether
// a message counts as caps.
func uniqueFields(s string) []string {
	fields := strings.Fields(s)
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// compiledQuery is one query resolved to its matching strategy.
type compiledQuery struct {
	re     *regexp.Regexp // word-boundary pattern; nil means substring
	needle string
	fold   bool // lowercase both sides before matching
}

func (q compiledQuery) match(message string) bool {
	if q.fold {
		message = strings.ToLower(message)
	}
	if q.re != nil {
		return q.re.MatchString(message)
	}
	return strings.Contains(message, q.needle)
}

// queryMatcher accepts a message iff at least one query matches.
type queryMatcher struct {
	queries []compiledQuery
}

func (m queryMatcher) Match(message string) bool {
	for _, q := range m.queries {
		if q.match(message) {
			return true
		}
	}
	return false
}

// newQueryMatcher compiles queries once for the pass. Emote queries whose
// code is not in the known-emote set are dropped (only added emotes are
// searchable).
func newQueryMatcher(queries []Query, emotes map[string]struct{}) (queryMatcher, error) {
	compiled := make([]compiledQuery, 0, len(queries))
	for _, q := range queries {
		if q.Emote {
			if _, ok := emotes[q.Text]; !ok {
				continue
			}
			re, err := wordPattern(q.Text)
			if err != nil {
				return queryMatcher{}, err
			}
			compiled = append(compiled, compiledQuery{re: re})
			continue
		}
		cq := compiledQuery{fold: !q.CaseSensitive}
		text := q.Text
		if cq.fold {
			text = strings.ToLower(text)
		}
		if q.ExactWord {
			re, err := wordPattern(text)
			if err != nil {
				return queryMatcher{}, err
			}
			cq.re = re
		} else {
			cq.needle = text
		}
		compiled = append(compiled, cq)
	}
	return queryMatcher{queries: compiled}, nil
}

func wordPattern(text string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(text) + `\b`)
	if err != nil {
		return nil, fmt.Errorf("compile query %q: %w", text, err)
	}
	return re, nil
}
