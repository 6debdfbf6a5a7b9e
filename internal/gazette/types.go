// Package gazette defines the core types shared across the watcher subsystems.
package gazette

import (
	"fmt"
	"strings"
	"time"
)

// Section identifies one gazette section (e.g. "do1").
type Section string

// Gazette sections published every business day.
const (
	SectionOne   Section = "do1"
	SectionTwo   Section = "do2"
	SectionThree Section = "do3"
)

// DefaultSections lists the sections crawled when none are configured.
var DefaultSections = []Section{SectionOne, SectionTwo, SectionThree}

var knownSections = map[string]Section{
	"do1": SectionOne, "do2": SectionTwo, "do3": SectionThree,
	"do1e": "do1e", "do2e": "do2e", "do3e": "do3e",
}

// ParseSection accepts a section name such as "do1", "DO2" or the legacy
// "dou3" spelling, and extra editions ("do1e").
func ParseSection(name string) (Section, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.Replace(key, "dou", "do", 1)
	if s, ok := knownSections[key]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown section %q", name)
}

// RunStatus is the terminal state recorded for a run.
type RunStatus string

// Run status values persisted in the ledger.
const (
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusError   RunStatus = "ERROR"
)

// DateLayout formats calendar days for markers, notifications and queries.
const DateLayout = "2006-01-02"

// Entry is one publication scraped from a gazette section.
// Missing upstream fields are left as empty strings.
type Entry struct {
	Section     Section   `json:"section"`
	Page        string    `json:"page"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	PublishedOn time.Time `json:"published_on"`
}

// Match records a watch-listed file number found in an entry.
type Match struct {
	RawNumber        string  `json:"raw_number"`
	NormalizedNumber string  `json:"normalized_number"`
	Section          Section `json:"section"`
	Page             string  `json:"page"`
	URL              string  `json:"url"`
	Title            string  `json:"title"`
	// PublishedOn is the gazette date of the entry; MatchRow carries it as
	// PublicationDate once persisted.
	PublishedOn time.Time `json:"-"`
}

// PublicationDay returns the start of the match's gazette day, or of
// fallback's day when the match carries no date.
func (m Match) PublicationDay(fallback time.Time) time.Time {
	t := m.PublishedOn
	if t.IsZero() {
		t = fallback
	}
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

// RunRecord is one row of the execution ledger.
type RunRecord struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"timestamp"`
	Status          RunStatus `json:"status"`
	MatchCount      int       `json:"match_count"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// MatchRow is a persisted Match owned by a RunRecord.
type MatchRow struct {
	ID              int64     `json:"id"`
	RunID           string    `json:"run_id"`
	PublicationDate time.Time `json:"publication_date"`
	Match
}

// RunEntry is the write-side input for a ledger append.
type RunEntry struct {
	StartedAt    time.Time
	Status       RunStatus
	Matches      []Match
	ErrorMessage string
	Duration     time.Duration
}

// Notification is handed to notifiers when matches are found.
type Notification struct {
	Date    time.Time `json:"date"`
	Matches []Match   `json:"matches"`
}
