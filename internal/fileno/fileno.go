// Package fileno normalizes and extracts administrative file numbers.
//
// File numbers appear in many shapes ("19515.720728/2017-36",
// "19515720728201736", "123.456/2020-01"). Two raw strings refer to the same
// file number iff their digit-only projections are equal.
package fileno

import (
	"regexp"
	"strings"
)

// pattern matches digit groups joined by at most one '.', '-' or '/', with at
// least three groups. Separators are optional so unformatted runs still match.
var pattern = regexp.MustCompile(`\d+(?:[./-]?\d+){2,}`)

// Normalize keeps the ASCII digits of s in order. Strings without digits
// normalize to "", which never matches a watch-list key.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Extract returns every candidate file number in text, left to right,
// non-overlapping and greedy. It returns nil when nothing matches.
func Extract(text string) []string {
	return pattern.FindAllString(text, -1)
}

// EntryText joins an entry's title and body the way they are scanned.
func EntryText(title, content string) string {
	return title + " " + content
}
