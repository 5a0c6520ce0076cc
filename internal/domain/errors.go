package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownScope is returned when a query names a database scope that no registered adapter serves
	ErrUnknownScope = errors.New("unknown database scope")

	// ErrInvalidPageRequest is returned when page or page size are out of bounds
	ErrInvalidPageRequest = errors.New("invalid page request")

	// ErrInvalidQuery is returned when request parameters are invalid
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrNotFound is returned when a provider has no item for the requested id or barcode
	ErrNotFound = errors.New("item not found")

	// ErrRateLimited is returned when an upstream provider rejects a call with a rate-limit response
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrProviderFailure is returned when an upstream provider request fails
	ErrProviderFailure = errors.New("provider request failed")

	// ErrProviderNotConfigured is returned when an operation needs a provider that was not registered
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// RateLimitError carries the retry hint an upstream source sent with its rate-limit response.
type RateLimitError struct {
	Source     Source
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Source)
}

// Unwrap lets errors.Is match ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
