package gazette

import (
	"context"
	"time"
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// WatchlistSource loads the raw file numbers to look for.
type WatchlistSource interface {
	Load(ctx context.Context) ([]string, error)
}

// EntrySource returns the publications of one section for one day.
type EntrySource interface {
	Fetch(ctx context.Context, section Section, day time.Time) ([]Entry, error)
}

// Notifier alerts an operator about matches.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// RunGuard allows at most one run attempt per calendar day.
type RunGuard interface {
	ShouldRun(ctx context.Context) bool
	MarkRun(ctx context.Context)
}

// LedgerWriter appends runs and their matches atomically.
type LedgerWriter interface {
	LogRun(ctx context.Context, run RunEntry) (string, error)
}

// LedgerReader serves the read side consumed by the dashboard.
type LedgerReader interface {
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	MatchesOn(ctx context.Context, day time.Time) ([]MatchRow, error)
	Ping(ctx context.Context) error
}

// Ledger is the append-only execution history.
type Ledger interface {
	LedgerWriter
	LedgerReader
	EnsureSchema(ctx context.Context) error
}
