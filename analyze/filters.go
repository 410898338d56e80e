package analyze

import "sync"

// AcceptFunc is a per-channel acceptance predicate applied to each parsed
// event before the preset match rule. Returning false drops the event.
// The purpose varies channel to channel (cut a pre-show, drop a raiding
// bot wave), so predicates are registered in code.
type AcceptFunc func(timeSec int, user, message string, emotes map[string]struct{}) bool

var (
	filtersMu      sync.RWMutex
	channelFilters = map[string]AcceptFunc{}
)

// RegisterChannelFilter installs a custom predicate for a channel,
// replacing any existing one.
func RegisterChannelFilter(channel string, fn AcceptFunc) {
	filtersMu.Lock()
	defer filtersMu.Unlock()
	channelFilters[channel] = fn
}

// ChannelFilter returns the predicate registered for channel, or nil.
func ChannelFilter(channel string) AcceptFunc {
	filtersMu.RLock()
	defer filtersMu.RUnlock()
	return channelFilters[channel]
}
