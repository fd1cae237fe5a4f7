package cloud

import (
	"context"
	"sync"
	"time"
)

// minIntervalLimiter enforces a minimum spacing between operations that
// share a key. Callers reserve a slot and then wait for it, so concurrent
// requests for the same device queue up rather than racing.
type minIntervalLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     map[string]time.Time
}

func newMinIntervalLimiter(interval time.Duration) *minIntervalLimiter {
	return &minIntervalLimiter{
		interval: interval,
		next:     make(map[string]time.Time),
	}
}

// wait blocks until the key's reserved slot arrives or the context is
// cancelled. A zero or negative interval disables limiting.
func (l *minIntervalLimiter) wait(ctx context.Context, key string) error {
	if l.interval <= 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	slot := l.next[key]
	if slot.Before(now) {
		slot = now
	}
	l.next[key] = slot.Add(l.interval)
	l.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
