// Package runguard enforces at most one run attempt per calendar day.
//
// The guard is a day-granularity lock shared by separate process invocations
// through a durable marker. Two invocations that both check before either
// marks can still both run; that window is accepted.
package runguard

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

// MarkerKey is the key under which the last attempted run date is stored.
const MarkerKey = "last_run_date"

// ErrNotFound is returned by stores when the key has never been written.
var ErrNotFound = errors.New("marker not found")

// Store persists the marker value.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Guard implements gazette.RunGuard on top of a Store.
type Guard struct {
	store  Store
	clock  gazette.Clock
	logger *zap.Logger
}

// New builds a Guard.
func New(store Store, clock gazette.Clock, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: store, clock: clock, logger: logger}
}

func (g *Guard) today() string {
	return g.clock.Now().Format(gazette.DateLayout)
}

// ShouldRun reports false only when the marker holds today's date. Missing,
// unreadable or stale markers allow the run.
func (g *Guard) ShouldRun(ctx context.Context) bool {
	last, err := g.store.Get(ctx, MarkerKey)
	switch {
	case errors.Is(err, ErrNotFound):
		return true
	case err != nil:
		g.logger.Warn("run marker unreadable, allowing run", zap.Error(err))
		return true
	}
	today := g.today()
	if last == today {
		g.logger.Info("already ran today", zap.String("date", today))
		return false
	}
	return true
}

// MarkRun overwrites the marker with today's date. A write failure is logged
// and otherwise ignored.
func (g *Guard) MarkRun(ctx context.Context) {
	today := g.today()
	if err := g.store.Put(ctx, MarkerKey, today); err != nil {
		g.logger.Warn("failed to write run marker", zap.String("date", today), zap.Error(err))
		return
	}
	g.logger.Debug("run marker written", zap.String("date", today))
}

// LastRun returns the stored marker value, or "" when absent.
func (g *Guard) LastRun(ctx context.Context) (string, error) {
	last, err := g.store.Get(ctx, MarkerKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read run marker: %w", err)
	}
	return last, nil
}

// Reset removes the marker so the next invocation runs.
func (g *Guard) Reset(ctx context.Context) error {
	if err := g.store.Delete(ctx, MarkerKey); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("reset run marker: %w", err)
	}
	return nil
}
