package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

// Ledger is an append-only in-memory execution ledger.
type Ledger struct {
	mu      sync.RWMutex
	idGen   gazette.IDGenerator
	runs    []gazette.RunRecord
	matches []gazette.MatchRow
	nextID  int64
}

// NewLedger constructs a Ledger.
func NewLedger(idGen gazette.IDGenerator) *Ledger {
	return &Ledger{idGen: idGen}
}

// EnsureSchema is a no-op for the in-memory ledger.
func (l *Ledger) EnsureSchema(context.Context) error { return nil }

// Ping always succeeds.
func (l *Ledger) Ping(context.Context) error { return nil }

// LogRun appends the run and its matches under one lock so readers never see
// a run without its matches.
func (l *Ledger) LogRun(_ context.Context, run gazette.RunEntry) (string, error) {
	id, err := l.idGen.NewID()
	if err != nil {
		return "", &gazette.PersistenceError{Op: "generate run id", Err: err}
	}
	record := gazette.RunRecord{
		ID:              id,
		StartedAt:       run.StartedAt,
		Status:          run.Status,
		MatchCount:      len(run.Matches),
		DurationSeconds: run.Duration.Seconds(),
	}
	if run.ErrorMessage != "" {
		msg := run.ErrorMessage
		record.ErrorMessage = &msg
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rows := make([]gazette.MatchRow, 0, len(run.Matches))
	for i, match := range run.Matches {
		day := match.PublicationDay(run.StartedAt)
		match.PublishedOn = day
		rows = append(rows, gazette.MatchRow{
			ID:              l.nextID + int64(i) + 1,
			RunID:           id,
			PublicationDate: day,
			Match:           match,
		})
	}
	l.nextID += int64(len(rows))
	l.runs = append(l.runs, record)
	l.matches = append(l.matches, rows...)
	return id, nil
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(_ context.Context, limit int) ([]gazette.RunRecord, error) {
	l.mu.RLock()
	runs := make([]gazette.RunRecord, len(l.runs))
	copy(runs, l.runs)
	l.mu.RUnlock()

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit >= 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// MatchesOn returns matches whose run started on day's calendar date.
func (l *Ledger) MatchesOn(_ context.Context, day time.Time) ([]gazette.MatchRow, error) {
	y, m, d := day.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1)

	l.mu.RLock()
	defer l.mu.RUnlock()
	onDay := make(map[string]bool, len(l.runs))
	for _, run := range l.runs {
		if !run.StartedAt.Before(from) && run.StartedAt.Before(to) {
			onDay[run.ID] = true
		}
	}
	var out []gazette.MatchRow
	for _, row := range l.matches {
		if onDay[row.RunID] {
			out = append(out, row)
		}
	}
	return out, nil
}
