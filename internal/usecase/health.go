package usecase

import (
	"sync"
	"time"

	"github.com/nutriplan/backend/internal/domain"
)

// downAfter is the number of consecutive failed live calls after which a
// source is reported down
const downAfter = 3

type healthRecord struct {
	consecutiveFailures int
	lastStatus          domain.Status
	lastChecked         time.Time
}

// HealthTracker records the outcome of live adapter calls
type HealthTracker struct {
	mu      sync.Mutex
	records map[domain.Source]*healthRecord
	now     func() time.Time
}

// NewHealthTracker creates an empty tracker
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		records: make(map[domain.Source]*healthRecord),
		now:     time.Now,
	}
}

// Record stores the status of one live call and returns the status of the
// previous one ("" if none)
func (h *HealthTracker) Record(source domain.Source, status domain.Status) domain.Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.records[source]
	if !ok {
		rec = &healthRecord{}
		h.records[source] = rec
	}
	previous := rec.lastStatus
	if status == domain.StatusOK {
		rec.consecutiveFailures = 0
	} else {
		rec.consecutiveFailures++
	}
	rec.lastStatus = status
	rec.lastChecked = h.now()
	return previous
}

// LastChecked returns when the source was last called live
func (h *HealthTracker) LastChecked(source domain.Source) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.records[source]
	if !ok {
		return time.Time{}, false
	}
	return rec.lastChecked, true
}

// Health classifies a source. A source never called is healthy.
func (h *HealthTracker) Health(source domain.Source, inBackoff bool) domain.Health {
	h.mu.Lock()
	defer h.mu.Unlock()

	failures := 0
	if rec, ok := h.records[source]; ok {
		failures = rec.consecutiveFailures
	}

	switch {
	case failures >= downAfter:
		return domain.HealthDown
	case inBackoff || failures > 0:
		return domain.HealthDegraded
	}
	return domain.HealthHealthy
}
