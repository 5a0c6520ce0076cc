package usecase

import (
	"sync"
	"time"

	"github.com/nutriplan/backend/internal/domain"
)

// BackoffTracker holds the process-wide per-source backoff state: one
// expiring deadline per source, cleared on success.
type BackoffTracker struct {
	mu          sync.Mutex
	until       map[domain.Source]time.Time
	defaultWait time.Duration
	now         func() time.Time
}

// NewBackoffTracker creates a tracker. defaultWait applies when a source
// is rate limited without a retry hint.
func NewBackoffTracker(defaultWait time.Duration) *BackoffTracker {
	if defaultWait <= 0 {
		defaultWait = 30 * time.Second
	}
	return &BackoffTracker{
		until:       make(map[domain.Source]time.Time),
		defaultWait: defaultWait,
		now:         time.Now,
	}
}

// Active reports whether the source is backed off and for how much longer.
// Expired records are dropped.
func (b *BackoffTracker) Active(source domain.Source) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	until, ok := b.until[source]
	if !ok {
		return 0, false
	}
	remaining := until.Sub(b.now())
	if remaining <= 0 {
		delete(b.until, source)
		return 0, false
	}
	return remaining, true
}

// Trip backs the source off for retryAfter (or the default wait) and
// returns the wait applied.
func (b *BackoffTracker) Trip(source domain.Source, retryAfter time.Duration) time.Duration {
	if retryAfter <= 0 {
		retryAfter = b.defaultWait
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	until := b.now().Add(retryAfter)
	// A shorter hint never shortens an existing backoff
	if current, ok := b.until[source]; ok && current.After(until) {
		return current.Sub(b.now())
	}
	b.until[source] = until
	return retryAfter
}

// Reset clears the source's backoff after a successful call
func (b *BackoffTracker) Reset(source domain.Source) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.until, source)
}
