package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
	"github.com/JakeFAU/gazette-watch/internal/id/uuid"
	notifymemory "github.com/JakeFAU/gazette-watch/internal/notify/memory"
	"github.com/JakeFAU/gazette-watch/internal/storage/memory"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one second per call so elapsed durations are deterministic.
func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Second)
	return t
}

type fakeGuard struct {
	allow  bool
	marked int
}

func (g *fakeGuard) ShouldRun(context.Context) bool { return g.allow }
func (g *fakeGuard) MarkRun(context.Context)        { g.marked++ }

type fakeWatchlist struct {
	numbers []string
	err     error
	calls   int
}

func (w *fakeWatchlist) Load(context.Context) ([]string, error) {
	w.calls++
	return w.numbers, w.err
}

type fakeSource struct {
	mu      sync.Mutex
	entries map[gazette.Section][]gazette.Entry
	errs    map[gazette.Section]error
	delays  map[gazette.Section]time.Duration
	calls   []gazette.Section
}

func (s *fakeSource) Fetch(ctx context.Context, section gazette.Section, _ time.Time) ([]gazette.Entry, error) {
	s.mu.Lock()
	s.calls = append(s.calls, section)
	delay := s.delays[section]
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := s.errs[section]; err != nil {
		return nil, err
	}
	return s.entries[section], nil
}

func (s *fakeSource) Calls() []gazette.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gazette.Section(nil), s.calls...)
}

type failingLedger struct{ err error }

func (l failingLedger) LogRun(context.Context, gazette.RunEntry) (string, error) {
	return "", &gazette.PersistenceError{Op: "insert run", Err: l.err}
}

type harness struct {
	guard     *fakeGuard
	watchlist *fakeWatchlist
	source    *fakeSource
	notifier  *notifymemory.Notifier
	ledger    *memory.Ledger
	clock     *stepClock
}

func newHarness() *harness {
	return &harness{
		guard:     &fakeGuard{allow: true},
		watchlist: &fakeWatchlist{numbers: []string{"12.3456/2020-01", "99999"}},
		source: &fakeSource{
			entries: map[gazette.Section][]gazette.Entry{
				gazette.SectionOne: {{
					Section: gazette.SectionOne,
					Page:    "12",
					URL:     "https://www.in.gov.br/web/dou/-/despacho-1",
					Title:   "DESPACHO",
					Content: "Processo 123456202001 arquivado",
				}},
				gazette.SectionTwo: {{Section: gazette.SectionTwo, Content: "nada relevante"}},
			},
		},
		notifier: notifymemory.New(),
		ledger:   memory.NewLedger(uuid.New()),
		clock:    &stepClock{now: time.Date(2024, 3, 14, 8, 0, 0, 0, time.UTC)},
	}
}

func (h *harness) build(t *testing.T, cfg Config, ledger gazette.LedgerWriter) *Orchestrator {
	t.Helper()
	if ledger == nil {
		ledger = h.ledger
	}
	o, err := New(cfg, Dependencies{
		Guard:     h.guard,
		Watchlist: h.watchlist,
		Source:    h.source,
		Notifier:  h.notifier,
		Ledger:    ledger,
		Clock:     h.clock,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	return o
}

func TestRunSkipsWhenAlreadyRan(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.guard.allow = false

	out := h.build(t, Config{}, nil).Run(context.Background())
	require.Equal(t, Skipped, out.Kind)
	require.Equal(t, ExitSkipped, out.ExitCode())
	require.Zero(t, h.guard.marked)
	require.Zero(t, h.watchlist.calls)
	require.Empty(t, h.source.Calls())

	runs, err := h.ledger.RecentRuns(context.Background(), 50)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestRunFindsMatchesAndNotifies(t *testing.T) {
	t.Parallel()

	h := newHarness()
	out := h.build(t, Config{}, nil).Run(context.Background())

	require.NoError(t, out.Err)
	require.Equal(t, MatchesFound, out.Kind)
	require.Equal(t, ExitMatchesFound, out.ExitCode())
	require.Len(t, out.Matches, 1)
	require.Equal(t, "123456202001", out.Matches[0].RawNumber)
	require.Equal(t, "123456202001", out.Matches[0].NormalizedNumber)
	require.Equal(t, gazette.SectionOne, out.Matches[0].Section)
	require.Equal(t, 1, h.guard.marked)
	require.Equal(t, []gazette.Section{gazette.SectionOne, gazette.SectionTwo, gazette.SectionThree}, h.source.Calls())

	sent := h.notifier.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "2024-03-14", sent[0].Date.Format(gazette.DateLayout))
	require.Equal(t, out.Matches, sent[0].Matches)

	runs, err := h.ledger.RecentRuns(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, out.RunID, runs[0].ID)
	require.Equal(t, gazette.RunStatusSuccess, runs[0].Status)
	require.Equal(t, 1, runs[0].MatchCount)
	require.Positive(t, runs[0].DurationSeconds)

	rows, err := h.ledger.MatchesOn(context.Background(), h.clock.Now())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, out.RunID, rows[0].RunID)
}

func TestRunWithoutMatches(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.watchlist.numbers = []string{"00000"}

	out := h.build(t, Config{}, nil).Run(context.Background())
	require.Equal(t, NoMatches, out.Kind)
	require.Equal(t, ExitNoMatches, out.ExitCode())
	require.Empty(t, h.notifier.Sent())

	runs, err := h.ledger.RecentRuns(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, gazette.RunStatusSuccess, runs[0].Status)
	require.Zero(t, runs[0].MatchCount)
}

func TestRunNotifierFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.notifier.FailWith(errors.New("smtp: 535 authentication failed"))

	out := h.build(t, Config{}, nil).Run(context.Background())
	require.NoError(t, out.Err)
	require.Equal(t, MatchesFound, out.Kind)
	require.Equal(t, ExitMatchesFound, out.ExitCode())

	runs, err := h.ledger.RecentRuns(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, gazette.RunStatusSuccess, runs[0].Status)
}

func TestRunCrawlFailureRecordsError(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.source.errs = map[gazette.Section]error{gazette.SectionTwo: errors.New("status 503")}

	out := h.build(t, Config{}, nil).Run(context.Background())
	require.Equal(t, Failed, out.Kind)
	require.Equal(t, ExitFailed, out.ExitCode())

	var ce *gazette.CollaboratorError
	require.ErrorAs(t, out.Err, &ce)
	require.Equal(t, gazette.CollaboratorCrawl, ce.Collaborator)
	require.Equal(t, 1, h.guard.marked)
	require.Empty(t, h.notifier.Sent())

	runs, err := h.ledger.RecentRuns(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, out.RunID, runs[0].ID)
	require.Equal(t, gazette.RunStatusError, runs[0].Status)
	require.NotNil(t, runs[0].ErrorMessage)
	require.Equal(t, "crawl: section do2: status 503", *runs[0].ErrorMessage)
	require.Positive(t, runs[0].DurationSeconds)
}

func TestRunConfigurationErrorLeavesNoTrace(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.watchlist.err = &gazette.ConfigurationError{Setting: "watchlist.path", Err: errors.New("no such file")}

	out := h.build(t, Config{}, nil).Run(context.Background())
	require.Equal(t, Failed, out.Kind)
	require.Equal(t, ExitFailed, out.ExitCode())

	var cfgErr *gazette.ConfigurationError
	require.ErrorAs(t, out.Err, &cfgErr)
	require.Zero(t, h.guard.marked)
	require.Empty(t, h.source.Calls())

	runs, err := h.ledger.RecentRuns(context.Background(), 50)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestRunWatchlistReadFailureIsRecorded(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.watchlist.err = errors.New("unexpected EOF")

	out := h.build(t, Config{}, nil).Run(context.Background())
	require.Equal(t, Failed, out.Kind)
	require.Equal(t, 1, h.guard.marked)

	var ce *gazette.CollaboratorError
	require.ErrorAs(t, out.Err, &ce)
	require.Equal(t, gazette.CollaboratorWatchlist, ce.Collaborator)

	runs, err := h.ledger.RecentRuns(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, gazette.RunStatusError, runs[0].Status)
}

func TestRunPersistenceFailure(t *testing.T) {
	t.Parallel()

	h := newHarness()
	out := h.build(t, Config{}, failingLedger{err: errors.New("connection reset")}).Run(context.Background())

	require.Equal(t, Failed, out.Kind)
	require.Equal(t, ExitFailed, out.ExitCode())
	var pe *gazette.PersistenceError
	require.ErrorAs(t, out.Err, &pe)
	require.Len(t, h.notifier.Sent(), 1)
}

func TestRunPersistenceFailureAfterCrawlFailure(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.source.errs = map[gazette.Section]error{gazette.SectionOne: errors.New("timeout")}
	out := h.build(t, Config{}, failingLedger{err: errors.New("connection reset")}).Run(context.Background())

	require.Equal(t, Failed, out.Kind)
	var pe *gazette.PersistenceError
	require.ErrorAs(t, out.Err, &pe)
	var ce *gazette.CollaboratorError
	require.ErrorAs(t, out.Err, &ce)
}

func TestRunParallelKeepsSectionOrder(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.watchlist.numbers = []string{"111", "222", "333"}
	h.source.entries = map[gazette.Section][]gazette.Entry{
		gazette.SectionOne:   {{Section: gazette.SectionOne, Content: "111"}},
		gazette.SectionTwo:   {{Section: gazette.SectionTwo, Content: "222"}},
		gazette.SectionThree: {{Section: gazette.SectionThree, Content: "333"}},
	}
	h.source.delays = map[gazette.Section]time.Duration{
		gazette.SectionOne: 30 * time.Millisecond,
		gazette.SectionTwo: 10 * time.Millisecond,
	}

	out := h.build(t, Config{Parallel: true}, nil).Run(context.Background())
	require.NoError(t, out.Err)
	require.Len(t, out.Matches, 3)
	require.Equal(t, gazette.SectionOne, out.Matches[0].Section)
	require.Equal(t, gazette.SectionTwo, out.Matches[1].Section)
	require.Equal(t, gazette.SectionThree, out.Matches[2].Section)
}

func TestRunParallelFailure(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.source.errs = map[gazette.Section]error{gazette.SectionThree: errors.New("boom")}
	h.source.delays = map[gazette.Section]time.Duration{gazette.SectionOne: time.Second}

	out := h.build(t, Config{Parallel: true}, nil).Run(context.Background())
	require.Equal(t, Failed, out.Kind)
	require.ErrorContains(t, out.Err, "section do3: boom")
}

func TestRunUsesConfiguredSections(t *testing.T) {
	t.Parallel()

	h := newHarness()
	out := h.build(t, Config{Sections: []gazette.Section{gazette.SectionTwo}}, nil).Run(context.Background())
	require.Equal(t, NoMatches, out.Kind)
	require.Equal(t, []gazette.Section{gazette.SectionTwo}, h.source.Calls())
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Dependencies{})
	require.Error(t, err)
}

func TestOutcomeExitCodes(t *testing.T) {
	t.Parallel()

	cases := map[Kind]int{NoMatches: 0, MatchesFound: 1, Failed: 2, Skipped: 3}
	for kind, code := range cases {
		require.Equal(t, code, Outcome{Kind: kind}.ExitCode(), kind.String())
	}
	require.Equal(t, "unknown", Kind(42).String())
}
