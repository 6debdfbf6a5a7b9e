package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS run_records (
	id               UUID PRIMARY KEY,
	started_at       TIMESTAMPTZ NOT NULL,
	status           TEXT NOT NULL,
	match_count      INTEGER NOT NULL,
	error_message    TEXT,
	duration_seconds DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS run_records_started_at_idx ON run_records (started_at DESC);
CREATE TABLE IF NOT EXISTS match_records (
	id                BIGSERIAL PRIMARY KEY,
	run_id            UUID NOT NULL REFERENCES run_records (id),
	raw_number        TEXT NOT NULL,
	normalized_number TEXT NOT NULL,
	section           TEXT NOT NULL,
	page              TEXT NOT NULL,
	url               TEXT NOT NULL,
	title             TEXT NOT NULL,
	publication_date  DATE NOT NULL
);
CREATE INDEX IF NOT EXISTS match_records_run_id_idx ON match_records (run_id);
`

const insertRunSQL = `
INSERT INTO run_records (
	id,
	started_at,
	status,
	match_count,
	error_message,
	duration_seconds
) VALUES ($1,$2,$3,$4,$5,$6)`

const insertMatchSQL = `
INSERT INTO match_records (
	run_id,
	raw_number,
	normalized_number,
	section,
	page,
	url,
	title,
	publication_date
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

const recentRunsSQL = `
SELECT id::text, started_at, status, match_count, error_message, duration_seconds
FROM run_records
ORDER BY started_at DESC
LIMIT $1`

const matchesOnSQL = `
SELECT m.id, m.run_id::text, m.publication_date, m.raw_number, m.normalized_number,
	m.section, m.page, m.url, m.title
FROM match_records m
JOIN run_records r ON r.id = m.run_id
WHERE r.started_at >= $1 AND r.started_at < $2
ORDER BY m.id`

// Ledger implements gazette.Ledger on Postgres. It only inserts and reads;
// historical rows are never updated or deleted.
type Ledger struct {
	pool  Pool
	idGen gazette.IDGenerator
}

// NewLedger builds a Ledger on an existing pool.
func NewLedger(pool Pool, idGen gazette.IDGenerator) (*Ledger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if idGen == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	return &Ledger{pool: pool, idGen: idGen}, nil
}

// EnsureSchema creates the ledger tables when absent.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// LogRun inserts the run row and its match rows in one transaction. Readers
// see either the run with all of its matches or nothing.
func (l *Ledger) LogRun(ctx context.Context, run gazette.RunEntry) (string, error) {
	id, err := l.idGen.NewID()
	if err != nil {
		return "", &gazette.PersistenceError{Op: "generate run id", Err: err}
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return "", &gazette.PersistenceError{Op: "begin", Err: err}
	}
	abort := func(op string, cause error) error {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			cause = fmt.Errorf("%w (rollback: %v)", cause, rbErr)
		}
		return &gazette.PersistenceError{Op: op, Err: cause}
	}

	if _, err := tx.Exec(ctx, insertRunSQL,
		id,
		run.StartedAt,
		string(run.Status),
		len(run.Matches),
		nullableString(run.ErrorMessage),
		run.Duration.Seconds(),
	); err != nil {
		return "", abort("insert run", err)
	}

	for _, m := range run.Matches {
		if _, err := tx.Exec(ctx, insertMatchSQL,
			id,
			m.RawNumber,
			m.NormalizedNumber,
			string(m.Section),
			m.Page,
			m.URL,
			m.Title,
			m.PublicationDay(run.StartedAt),
		); err != nil {
			return "", abort("insert match", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", abort("commit", err)
	}
	return id, nil
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]gazette.RunRecord, error) {
	rows, err := l.pool.Query(ctx, recentRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []gazette.RunRecord
	for rows.Next() {
		var (
			run    gazette.RunRecord
			status string
		)
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&status,
			&run.MatchCount,
			&run.ErrorMessage,
			&run.DurationSeconds,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		run.Status = gazette.RunStatus(status)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// MatchesOn returns matches whose parent run started on day's calendar date
// (in day's location), in insertion order.
func (l *Ledger) MatchesOn(ctx context.Context, day time.Time) ([]gazette.MatchRow, error) {
	from := startOfDay(day)
	to := from.AddDate(0, 0, 1)
	rows, err := l.pool.Query(ctx, matchesOnSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var matches []gazette.MatchRow
	for rows.Next() {
		var (
			row     gazette.MatchRow
			section string
		)
		if err := rows.Scan(
			&row.ID,
			&row.RunID,
			&row.PublicationDate,
			&row.RawNumber,
			&row.NormalizedNumber,
			&section,
			&row.Page,
			&row.URL,
			&row.Title,
		); err != nil {
			return nil, fmt.Errorf("scan match row: %w", err)
		}
		row.Section = gazette.Section(section)
		row.PublishedOn = row.PublicationDate
		matches = append(matches, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match rows: %w", err)
	}
	return matches, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
