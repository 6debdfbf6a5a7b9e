// Package matcher cross-references extracted file numbers with the watch-list.
package matcher

import (
	"github.com/JakeFAU/gazette-watch/internal/fileno"
	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

// Matcher holds the normalized watch-list.
type Matcher struct {
	keys map[string]struct{}
}

// New normalizes the watch-list once. Entries without digits are dropped.
func New(watchlist []string) *Matcher {
	keys := make(map[string]struct{}, len(watchlist))
	for _, raw := range watchlist {
		if key := fileno.Normalize(raw); key != "" {
			keys[key] = struct{}{}
		}
	}
	return &Matcher{keys: keys}
}

// Size returns the number of distinct normalized watch-list keys.
func (m *Matcher) Size() int {
	return len(m.keys)
}

// Match emits at most one Match per entry, in entry order. Within an entry the
// first extracted candidate on the watch-list wins; RawNumber keeps the
// candidate's original formatting.
func (m *Matcher) Match(entries []gazette.Entry) []gazette.Match {
	var matches []gazette.Match
	for _, entry := range entries {
		if match, ok := m.matchEntry(entry); ok {
			matches = append(matches, match)
		}
	}
	return matches
}

func (m *Matcher) matchEntry(entry gazette.Entry) (gazette.Match, bool) {
	for _, candidate := range fileno.Extract(fileno.EntryText(entry.Title, entry.Content)) {
		key := fileno.Normalize(candidate)
		if _, ok := m.keys[key]; !ok {
			continue
		}
		return gazette.Match{
			RawNumber:        candidate,
			NormalizedNumber: key,
			Section:          entry.Section,
			Page:             entry.Page,
			URL:              entry.URL,
			Title:            entry.Title,
			PublishedOn:      entry.PublishedOn,
		}, true
	}
	return gazette.Match{}, false
}
