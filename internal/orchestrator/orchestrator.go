// Package orchestrator sequences one watcher run: guard, watch-list, crawl,
// match, notify and ledger.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
	"github.com/JakeFAU/gazette-watch/internal/matcher"
	"github.com/JakeFAU/gazette-watch/internal/metrics"
	"github.com/JakeFAU/gazette-watch/internal/telemetry"
)

// Config controls which sections are scanned and how.
type Config struct {
	Sections []gazette.Section
	Parallel bool
}

// Dependencies are the collaborators used by a run. Notifier may be nil.
type Dependencies struct {
	Guard     gazette.RunGuard
	Watchlist gazette.WatchlistSource
	Source    gazette.EntrySource
	Notifier  gazette.Notifier
	Ledger    gazette.LedgerWriter
	Clock     gazette.Clock
	Logger    *zap.Logger
}

// Orchestrator runs the daily scan.
type Orchestrator struct {
	cfg       Config
	guard     gazette.RunGuard
	watchlist gazette.WatchlistSource
	source    gazette.EntrySource
	notifier  gazette.Notifier
	ledger    gazette.LedgerWriter
	clock     gazette.Clock
	logger    *zap.Logger
}

// New validates the dependencies and builds an Orchestrator.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Guard == nil:
		return nil, errors.New("orchestrator: run guard is required")
	case deps.Watchlist == nil:
		return nil, errors.New("orchestrator: watch-list source is required")
	case deps.Source == nil:
		return nil, errors.New("orchestrator: entry source is required")
	case deps.Ledger == nil:
		return nil, errors.New("orchestrator: ledger is required")
	case deps.Clock == nil:
		return nil, errors.New("orchestrator: clock is required")
	}
	if len(cfg.Sections) == 0 {
		cfg.Sections = gazette.DefaultSections
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		guard:     deps.Guard,
		watchlist: deps.Watchlist,
		source:    deps.Source,
		notifier:  deps.Notifier,
		ledger:    deps.Ledger,
		clock:     deps.Clock,
		logger:    logger.Named("orchestrator"),
	}, nil
}

// Run performs one invocation and reports how it ended.
func (o *Orchestrator) Run(ctx context.Context) Outcome {
	ctx, span := telemetry.Tracer().Start(ctx, "gazette.run")
	defer span.End()

	outcome := o.run(ctx)
	span.SetAttributes(
		attribute.String("outcome", outcome.Kind.String()),
		attribute.Int("matches", len(outcome.Matches)),
	)
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
	}
	metrics.ObserveRun(outcome.Kind.String(), outcome.Duration)
	return outcome
}

func (o *Orchestrator) run(ctx context.Context) Outcome {
	if !o.guard.ShouldRun(ctx) {
		o.logger.Info("already ran today, skipping")
		return Outcome{Kind: Skipped}
	}

	start := o.clock.Now()
	logger := o.logger.With(zap.String("date", start.Format(gazette.DateLayout)))

	raw, err := o.watchlist.Load(ctx)
	var cfgErr *gazette.ConfigurationError
	if errors.As(err, &cfgErr) {
		elapsed := o.clock.Now().Sub(start)
		logger.Error("watch-list unusable, run not started", zap.Error(err), zap.Duration("elapsed", elapsed))
		return Outcome{Kind: Failed, Err: err, Duration: elapsed}
	}

	o.guard.MarkRun(ctx)
	if err != nil {
		return o.fail(ctx, start, logger, collaboratorError(gazette.CollaboratorWatchlist, err))
	}

	m := matcher.New(raw)
	if m.Size() == 0 {
		logger.Warn("watch-list is empty, nothing can match")
	}
	logger.Info("watch-list loaded", zap.Int("numbers", m.Size()), zap.Int("rows", len(raw)))

	entries, err := o.fetchAll(ctx, start)
	if err != nil {
		return o.fail(ctx, start, logger, collaboratorError(gazette.CollaboratorCrawl, err))
	}

	matches := m.Match(entries)
	logger.Info("matching complete", zap.Int("entries", len(entries)), zap.Int("matches", len(matches)))

	if len(matches) > 0 {
		o.notify(ctx, start, matches, logger)
	}

	duration := o.clock.Now().Sub(start)
	runID, err := o.ledger.LogRun(ctx, gazette.RunEntry{
		StartedAt: start,
		Status:    gazette.RunStatusSuccess,
		Matches:   matches,
		Duration:  duration,
	})
	if err != nil {
		logger.Error("failed to record run", zap.Error(err), zap.Duration("elapsed", duration))
		return Outcome{Kind: Failed, Matches: matches, Err: persistenceError(err), Duration: duration}
	}

	kind := NoMatches
	if len(matches) > 0 {
		kind = MatchesFound
	}
	logger.Info("run complete",
		zap.String("run_id", runID),
		zap.Int("matches", len(matches)),
		zap.Duration("elapsed", duration),
	)
	return Outcome{Kind: kind, RunID: runID, Matches: matches, Duration: duration}
}

func (o *Orchestrator) fail(ctx context.Context, start time.Time, logger *zap.Logger, cause error) Outcome {
	duration := o.clock.Now().Sub(start)
	logger.Error("run failed", zap.Error(cause), zap.Duration("elapsed", duration))

	runID, err := o.ledger.LogRun(ctx, gazette.RunEntry{
		StartedAt:    start,
		Status:       gazette.RunStatusError,
		ErrorMessage: cause.Error(),
		Duration:     duration,
	})
	if err != nil {
		logger.Error("failed to record failed run", zap.Error(err), zap.Duration("elapsed", duration))
		return Outcome{Kind: Failed, Err: errors.Join(cause, persistenceError(err)), Duration: duration}
	}
	return Outcome{Kind: Failed, RunID: runID, Err: cause, Duration: duration}
}

func (o *Orchestrator) notify(ctx context.Context, day time.Time, matches []gazette.Match, logger *zap.Logger) {
	if o.notifier == nil {
		logger.Warn("matches found but no notifier configured", zap.Int("matches", len(matches)))
		return
	}
	err := o.notifier.Notify(ctx, gazette.Notification{Date: day, Matches: matches})
	if err != nil {
		logger.Error("notification failed",
			zap.Error(collaboratorError(gazette.CollaboratorNotify, err)),
			zap.Duration("elapsed", o.clock.Now().Sub(day)),
		)
	}
}

// fetchAll returns the entries of every configured section, in section order.
func (o *Orchestrator) fetchAll(ctx context.Context, day time.Time) ([]gazette.Entry, error) {
	results := make([][]gazette.Entry, len(o.cfg.Sections))

	if o.cfg.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i, section := range o.cfg.Sections {
			g.Go(func() error {
				entries, err := o.fetchSection(gctx, section, day)
				if err != nil {
					return err
				}
				results[i] = entries
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, section := range o.cfg.Sections {
			entries, err := o.fetchSection(ctx, section, day)
			if err != nil {
				return nil, err
			}
			results[i] = entries
		}
	}

	var all []gazette.Entry
	for _, entries := range results {
		all = append(all, entries...)
	}
	return all, nil
}

func (o *Orchestrator) fetchSection(ctx context.Context, section gazette.Section, day time.Time) ([]gazette.Entry, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "gazette.fetch_section")
	defer span.End()
	span.SetAttributes(attribute.String("section", string(section)))

	entries, err := o.source.Fetch(ctx, section, day)
	if err != nil {
		metrics.ObserveSectionFetch(string(section), "error", 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("section %s: %w", section, err)
	}
	metrics.ObserveSectionFetch(string(section), "ok", len(entries))
	span.SetAttributes(attribute.Int("entries", len(entries)))
	return entries, nil
}

func collaboratorError(name string, err error) error {
	var ce *gazette.CollaboratorError
	if errors.As(err, &ce) {
		return err
	}
	return &gazette.CollaboratorError{Collaborator: name, Err: err}
}

func persistenceError(err error) error {
	var pe *gazette.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &gazette.PersistenceError{Op: "log run", Err: err}
}
