package main

import (
	"context"
	"sync"

	"customer-care/internal/handoff"
)

// lateNotifier forwards to a notifier that is only available after the
// dialogue handler has been built.
type lateNotifier struct {
	mu sync.RWMutex
	n  handoff.Notifier
}

func (l *lateNotifier) set(n handoff.Notifier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.n = n
}

func (l *lateNotifier) Notify(ctx context.Context, tk handoff.Ticket) error {
	l.mu.RLock()
	n := l.n
	l.mu.RUnlock()
	if n == nil {
		return nil
	}
	return n.Notify(ctx, tk)
}
