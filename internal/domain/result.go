package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status is the outcome of one adapter invocation
type Status string

const (
	StatusOK          Status = "ok"
	StatusTimeout     Status = "timeout"
	StatusError       Status = "error"
	StatusRateLimited Status = "rateLimited"
)

// TotalUnknown marks a ProviderResult whose source did not report a total.
const TotalUnknown = -1

// ProviderResult is produced once per adapter invocation and never mutated
// afterwards. Failures are carried in Status, not returned as errors.
type ProviderResult struct {
	Source         Source `json:"source"`
	Status         Status `json:"status"`
	Items          []Item `json:"items"`
	TotalAvailable int    `json:"totalAvailable"`
	// RetryAfter is the upstream retry hint for rateLimited results
	RetryAfter time.Duration `json:"-"`
	// Dropped counts malformed upstream items that were skipped
	Dropped int    `json:"dropped,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the result can contribute items to a page.
func (r ProviderResult) OK() bool {
	return r.Status == StatusOK
}

// OKResult builds a successful result.
func OKResult(source Source, items []Item, total, dropped int) ProviderResult {
	if items == nil {
		items = []Item{}
	}
	return ProviderResult{
		Source:         source,
		Status:         StatusOK,
		Items:          items,
		TotalAvailable: total,
		Dropped:        dropped,
	}
}

// FailedResult classifies an adapter error into a degraded result:
// deadline exceeded → timeout, RateLimitError → rateLimited, anything else → error.
func FailedResult(source Source, err error) ProviderResult {
	result := ProviderResult{
		Source:         source,
		Status:         StatusError,
		Items:          []Item{},
		TotalAvailable: 0,
	}
	if err == nil {
		return result
	}
	result.Message = err.Error()

	var rle *RateLimitError
	switch {
	case errors.As(err, &rle):
		result.Status = StatusRateLimited
		result.RetryAfter = rle.RetryAfter
	case errors.Is(err, ErrRateLimited):
		result.Status = StatusRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = StatusTimeout
	}
	return result
}

// AggregatedPage is the terminal response of a fan-out query. Partial pages
// are successful responses.
type AggregatedPage struct {
	Query                     NormalizedQuery `json:"query"`
	Items                     []Item          `json:"items"`
	TotalEstimate             int             `json:"totalEstimate"`
	TotalEstimateIsLowerBound bool            `json:"totalEstimateIsLowerBound"`
	Page                      int             `json:"page"`
	PageSize                  int             `json:"pageSize"`
	TotalPages                int             `json:"totalPages"`
	Partial                   bool            `json:"partial"`
	DegradedSources           []Source        `json:"degradedSources"`
}

// MarshalJSON exposes the query's canonical fields.
func (q NormalizedQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind     QueryKind         `json:"kind"`
		Text     string            `json:"text"`
		Scope    Scope             `json:"scope"`
		Page     int               `json:"page"`
		PageSize int               `json:"pageSize"`
		Filters  map[string]string `json:"filters,omitempty"`
	}{q.kind, q.text, q.scope, q.page, q.pageSize, q.filters})
}

// SourceStats is one source's contribution to the database statistics
type SourceStats struct {
	TotalFoods   int  `json:"totalFoods"`
	BrandedFoods *int `json:"brandedFoods,omitempty"`
}

// DatabaseStats summarises the size of every source that can report it
type DatabaseStats struct {
	TotalFoods int                    `json:"totalFoods"`
	PerSource  map[Source]SourceStats `json:"perSource"`
	Status     string                 `json:"status"`
	Unreported []Source               `json:"unreported,omitempty"`
}

// Health is a source's state as seen by the coordinator
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthDown     Health = "down"
)

// ServiceStatus maps each registered source to its health
type ServiceStatus struct {
	PerSource map[Source]Health `json:"perSource"`
	// CheckedAt is the time of the last live call, for sources called at least once
	CheckedAt map[Source]time.Time `json:"checkedAt,omitempty"`
	// Cache is set when the result cache reports its counters
	Cache *CacheStats `json:"cache,omitempty"`
}

// CacheStats is a snapshot of the result cache
type CacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	// OldestEntryAge is how long the oldest live entry has been stored
	OldestEntryAge time.Duration `json:"-"`
}

// MarshalJSON reports the oldest entry age in whole seconds.
func (s CacheStats) MarshalJSON() ([]byte, error) {
	type plain CacheStats
	return json.Marshal(struct {
		plain
		OldestEntryAgeSeconds int64 `json:"oldestEntryAgeSeconds"`
	}{plain(s), int64(s.OldestEntryAge / time.Second)})
}
