// Package notify fans match notifications out to one or more channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

// Named is a notifier with a label used in logs and errors.
type Named struct {
	Name     string
	Notifier gazette.Notifier
}

// Multi delivers a notification to every configured channel.
type Multi struct {
	channels []Named
	logger   *zap.Logger
}

// NewMulti builds a Multi. Channels with a nil notifier are ignored.
func NewMulti(logger *zap.Logger, channels ...Named) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Named, 0, len(channels))
	for _, ch := range channels {
		if ch.Notifier != nil {
			kept = append(kept, ch)
		}
	}
	return &Multi{channels: kept, logger: logger}
}

// Len reports the number of configured channels.
func (m *Multi) Len() int {
	return len(m.channels)
}

// Notify attempts every channel and joins the failures.
func (m *Multi) Notify(ctx context.Context, n gazette.Notification) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Notifier.Notify(ctx, n); err != nil {
			m.logger.Warn("notification channel failed", zap.String("channel", ch.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
			continue
		}
		m.logger.Info("notification sent", zap.String("channel", ch.Name), zap.Int("matches", len(n.Matches)))
	}
	return errors.Join(errs...)
}
