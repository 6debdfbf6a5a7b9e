// Package memory contains an in-memory notifier for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

// Notifier records every notification it receives.
type Notifier struct {
	mu   sync.RWMutex
	sent []gazette.Notification
	err  error
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// FailWith makes subsequent Notify calls return err.
func (n *Notifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Notify records the notification.
func (n *Notifier) Notify(_ context.Context, notification gazette.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	matches := make([]gazette.Match, len(notification.Matches))
	copy(matches, notification.Matches)
	notification.Matches = matches
	n.sent = append(n.sent, notification)
	return nil
}

// Sent returns the recorded notifications.
func (n *Notifier) Sent() []gazette.Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]gazette.Notification, len(n.sent))
	copy(out, n.sent)
	return out
}
