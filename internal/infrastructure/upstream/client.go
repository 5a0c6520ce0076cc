// Package upstream is the HTTP transport shared by every provider client:
// proactive rate limiting, bounded retries for transient failures, and
// translation of status codes into domain errors.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nutriplan/backend/internal/domain"
)

const (
	// HeaderRetryAfter is the retry-after header (seconds or HTTP date).
	HeaderRetryAfter = "Retry-After"

	defaultMaxRetries = 3
	maxBodyBytes      = 4 << 20
	maxErrorBodyBytes = 512
)

// Config describes one upstream provider endpoint
type Config struct {
	Source    domain.Source
	BaseURL   string
	UserAgent string
	// Timeout bounds a single HTTP round trip. The caller's context still wins.
	Timeout time.Duration
	// RatePerSecond and Burst configure the proactive token bucket.
	// RatePerSecond <= 0 disables it.
	RatePerSecond float64
	Burst         int
	MaxRetries    int
	// RateLimitStatuses are extra status codes the provider uses to signal
	// quota exhaustion (429 is always treated as a rate limit).
	RateLimitStatuses []int
}

// Client handles communication with one upstream provider
type Client struct {
	httpClient        *http.Client
	source            domain.Source
	baseURL           string
	userAgent         string
	limiter           *rate.Limiter
	maxRetries        int
	rateLimitStatuses map[int]bool
	backoff           func(attempt int) time.Duration
	logger            *zap.Logger
}

// NewClient creates a new upstream client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "NutriPlan/1.0"
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	statuses := map[int]bool{http.StatusTooManyRequests: true}
	for _, s := range cfg.RateLimitStatuses {
		statuses[s] = true
	}

	return &Client{
		httpClient:        &http.Client{Timeout: timeout},
		source:            cfg.Source,
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:         userAgent,
		limiter:           limiter,
		maxRetries:        maxRetries,
		rateLimitStatuses: statuses,
		backoff:           exponentialBackoff,
		logger:            logger.With(zap.String("source", string(cfg.Source))),
	}
}

// Source returns the provider this client talks to
func (c *Client) Source() domain.Source {
	return c.source
}

// GetJSON issues a GET to baseURL+path and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, params, nil, out)
}

// PostJSON encodes body as JSON, POSTs it and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, path string, params url.Values, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, params, payload, out)
}

// do executes the request with retries. Retries cover transport errors and
// 5xx responses only; rate limits are returned at once so the caller can
// back the whole source off.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload []byte, out interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.wait(ctx); err != nil {
			return err
		}

		resp, err := c.doRequest(ctx, method, reqURL, payload)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%s request: %w", c.source, ctxErr)
			}
			c.logger.Debug("request error", zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
			if err := c.pause(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		body, readErr := readLimitedBody(resp.Body, maxBodyBytes)
		resp.Body.Close()
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%s read body: %w", c.source, ctxErr)
			}
			lastErr = fmt.Errorf("%w: reading body: %v", domain.ErrProviderFailure, readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil

		case resp.StatusCode == http.StatusNotFound:
			return domain.ErrNotFound

		case c.rateLimitStatuses[resp.StatusCode]:
			retryAfter := parseRetryAfter(resp.Header.Get(HeaderRetryAfter), time.Now())
			c.logger.Warn("rate limited by upstream",
				zap.Int("status", resp.StatusCode),
				zap.Duration("retry_after", retryAfter))
			return &domain.RateLimitError{Source: c.source, RetryAfter: retryAfter}

		case resp.StatusCode >= 500:
			c.logger.Debug("upstream server error",
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode))
			lastErr = fmt.Errorf("%w: status %d", domain.ErrProviderFailure, resp.StatusCode)
			if err := c.pause(ctx, attempt); err != nil {
				return err
			}
			continue

		default:
			// Other 4xx: the request itself is wrong, retrying will not help
			return fmt.Errorf("%w: status %d, body: %s", domain.ErrProviderFailure, resp.StatusCode, truncate(body, maxErrorBodyBytes))
		}
	}

	c.logger.Debug("all retries failed", zap.Error(lastErr))
	if lastErr == nil {
		lastErr = domain.ErrProviderFailure
	}
	if !errors.Is(lastErr, domain.ErrProviderFailure) {
		lastErr = fmt.Errorf("%w: %v", domain.ErrProviderFailure, lastErr)
	}
	return lastErr
}

// wait blocks on the proactive limiter. A limiter refusal caused by the
// context deadline is reported as a deadline so it is classified as a timeout.
func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s rate limiter: %w", c.source, ctxErr)
		}
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("%s rate limiter: %w", c.source, context.DeadlineExceeded)
		}
		return fmt.Errorf("%s rate limiter: %w", c.source, err)
	}
	return nil
}

// doRequest executes one HTTP request with proper headers
func (c *Client) doRequest(ctx context.Context, method, reqURL string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	return resp, nil
}

// pause sleeps before the next attempt; there is no pause after the last one.
func (c *Client) pause(ctx context.Context, attempt int) error {
	if attempt >= c.maxRetries {
		return nil
	}
	return sleepCtx(ctx, c.backoff(attempt))
}

// exponentialBackoff returns the pause before retrying: 500ms, 1s, 2s, ...
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// readLimitedBody reads at most limit bytes from r
func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Unparseable or
// past values yield zero, meaning "no hint".
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
