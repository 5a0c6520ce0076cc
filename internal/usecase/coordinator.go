package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nutriplan/backend/internal/domain"
)

// CoordinatorConfig holds the fan-out timing knobs
type CoordinatorConfig struct {
	// AdapterTimeout bounds each adapter call
	AdapterTimeout time.Duration
	// OKTTL is how long ok results are cached
	OKTTL time.Duration
	// NegativeTTL is how long timeout/error/rateLimited results are cached
	NegativeTTL time.Duration
}

// Coordinator fans a query out to adapters through the cache and the
// per-source backoff state.
type Coordinator struct {
	cache   domain.CacheRepository
	backoff *BackoffTracker
	health  *HealthTracker
	config  CoordinatorConfig
	logger  *zap.Logger
}

// NewCoordinator creates a coordinator. cache may be nil (no caching).
func NewCoordinator(cache domain.CacheRepository, backoff *BackoffTracker, health *HealthTracker, config CoordinatorConfig, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backoff == nil {
		backoff = NewBackoffTracker(0)
	}
	if health == nil {
		health = NewHealthTracker()
	}
	if config.AdapterTimeout <= 0 {
		config.AdapterTimeout = 3 * time.Second
	}
	if config.OKTTL <= 0 {
		config.OKTTL = 30 * time.Minute
	}
	if config.NegativeTTL <= 0 {
		config.NegativeTTL = 30 * time.Second
	}
	return &Coordinator{
		cache:   cache,
		backoff: backoff,
		health:  health,
		config:  config,
		logger:  logger,
	}
}

// Dispatch invokes every adapter concurrently and returns one result per
// adapter, in the order the adapters were given. It never fails: problems
// come back as degraded results.
func (c *Coordinator) Dispatch(ctx context.Context, q domain.NormalizedQuery, adapters []domain.Adapter) []domain.ProviderResult {
	results := make([]domain.ProviderResult, len(adapters))

	// The group only joins the goroutines. Failures are carried in the
	// results, so every goroutine returns nil and none cancels the others.
	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			// Each goroutine owns its slot
			results[i] = c.invoke(ctx, q, a)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// invoke serves one adapter: cache, then backoff, then a live call
func (c *Coordinator) invoke(ctx context.Context, q domain.NormalizedQuery, a domain.Adapter) domain.ProviderResult {
	source := a.Source()
	key := q.AdapterKey(source)

	if cached, ok := c.cached(ctx, key); ok {
		c.logger.Debug("adapter result from cache", zap.String("source", string(source)), zap.String("status", string(cached.Status)))
		return cached
	}

	if remaining, active := c.backoff.Active(source); active {
		c.logger.Debug("source in backoff, skipping", zap.String("source", string(source)), zap.Duration("remaining", remaining))
		return domain.ProviderResult{
			Source:     source,
			Status:     domain.StatusRateLimited,
			Items:      []domain.Item{},
			RetryAfter: remaining,
			Message:    "source is backing off",
		}
	}

	start := time.Now()
	result := c.call(ctx, a, func(callCtx context.Context) domain.ProviderResult {
		return a.Search(callCtx, q)
	})
	c.logger.Debug("adapter call finished",
		zap.String("source", string(source)),
		zap.String("status", string(result.Status)),
		zap.Int("items", len(result.Items)),
		zap.Duration("latency", time.Since(start)))

	// A caller that went away says nothing about the source
	if ctx.Err() == nil {
		c.store(ctx, key, result, c.observe(source, result))
	}
	return result
}

// call runs a search under the adapter timeout
func (c *Coordinator) call(ctx context.Context, a domain.Adapter, fn func(context.Context) domain.ProviderResult) domain.ProviderResult {
	source := a.Source()
	result := runBounded(ctx, c.config.AdapterTimeout, fn, func(err error) domain.ProviderResult {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("adapter call abandoned", zap.String("source", string(source)), zap.Error(err))
		}
		return domain.FailedResult(source, err)
	})

	// Adapters own their schema but not the result envelope
	result.Source = source
	if result.Items == nil || !result.OK() {
		result.Items = []domain.Item{}
	}
	if result.Status == "" {
		result.Status = domain.StatusError
	}
	return result
}

// runBounded runs fn in its own goroutine and waits for it or for the
// timeout, whichever comes first. A straggler's value is discarded; its
// goroutine exits as soon as fn returns. A panic in fn is reported through
// onFail like a timeout.
func runBounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) T, onFail func(error) T) T {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan T, 1)
	failed := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				failed <- fmt.Errorf("%w: adapter panic: %v", domain.ErrProviderFailure, r)
			}
		}()
		done <- fn(callCtx)
	}()

	select {
	case v := <-done:
		return v
	case err := <-failed:
		return onFail(err)
	case <-callCtx.Done():
		return onFail(callCtx.Err())
	}
}

// observe updates backoff and health from a live result and returns the
// cache TTL for it.
func (c *Coordinator) observe(source domain.Source, result domain.ProviderResult) time.Duration {
	previous := c.health.Record(source, result.Status)
	if previous != "" && previous != result.Status {
		c.logger.Info("source status changed",
			zap.String("source", string(source)),
			zap.String("from", string(previous)),
			zap.String("to", string(result.Status)))
	}

	switch result.Status {
	case domain.StatusOK:
		c.backoff.Reset(source)
		return c.config.OKTTL
	case domain.StatusRateLimited:
		wait := c.backoff.Trip(source, result.RetryAfter)
		c.logger.Warn("source rate limited, backing off", zap.String("source", string(source)), zap.Duration("wait", wait))
		// The cached copy must not outlive the backoff window
		if wait < c.config.NegativeTTL {
			return wait
		}
	}
	return c.config.NegativeTTL
}

// Lookup fetches one item by id from one adapter, under the same timeout,
// backoff and health bookkeeping as a search. ok results are cached.
func (c *Coordinator) Lookup(ctx context.Context, a domain.Adapter, id string) (domain.Item, error) {
	source := a.Source()
	key := fmt.Sprintf("item:%s:%s", source, id)

	if c.cache != nil {
		if value, err := c.cache.Get(ctx, key); err == nil {
			if item, ok := value.(domain.Item); ok {
				return item, nil
			}
		}
	}

	if remaining, active := c.backoff.Active(source); active {
		return nil, &domain.RateLimitError{Source: source, RetryAfter: remaining}
	}

	type outcome struct {
		item domain.Item
		err  error
	}
	out := runBounded(ctx, c.config.AdapterTimeout, func(callCtx context.Context) outcome {
		item, err := a.ByID(callCtx, id)
		return outcome{item: item, err: err}
	}, func(err error) outcome {
		return outcome{err: err}
	})

	// The source answered when it said "not found" or rejected the id
	answered := out.err == nil || errors.Is(out.err, domain.ErrNotFound) || errors.Is(out.err, domain.ErrInvalidQuery)
	result := domain.OKResult(source, nil, 0, 0)
	if !answered {
		result = domain.FailedResult(source, out.err)
	}
	if ctx.Err() == nil {
		c.observe(source, result)
	}

	switch {
	case result.Status == domain.StatusRateLimited:
		return nil, &domain.RateLimitError{Source: source, RetryAfter: result.RetryAfter}
	case !result.OK():
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrProviderFailure, source, result.Message)
	case out.err != nil:
		return nil, out.err
	}
	item := out.item

	if c.cache != nil && item != nil {
		if err := c.cache.Set(ctx, key, item, c.config.OKTTL); err != nil {
			c.logger.Debug("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return item, nil
}

// InBackoff reports whether the source is currently backed off
func (c *Coordinator) InBackoff(source domain.Source) bool {
	_, active := c.backoff.Active(source)
	return active
}

// Health reports the health of a source
func (c *Coordinator) Health(source domain.Source) domain.Health {
	return c.health.Health(source, c.InBackoff(source))
}

// LastChecked returns when the source was last called live
func (c *Coordinator) LastChecked(source domain.Source) (time.Time, bool) {
	return c.health.LastChecked(source)
}

// cached reads a ProviderResult. Any cache failure is a miss.
func (c *Coordinator) cached(ctx context.Context, key string) (domain.ProviderResult, bool) {
	if c.cache == nil {
		return domain.ProviderResult{}, false
	}
	value, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			c.logger.Debug("cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		return domain.ProviderResult{}, false
	}
	result, ok := value.(domain.ProviderResult)
	if !ok {
		c.logger.Debug("unexpected cache value, treating as miss", zap.String("key", key))
		return domain.ProviderResult{}, false
	}
	return result, true
}

func (c *Coordinator) store(ctx context.Context, key string, result domain.ProviderResult, ttl time.Duration) {
	if c.cache == nil || ttl <= 0 {
		return
	}
	if err := c.cache.Set(ctx, key, result, ttl); err != nil {
		c.logger.Debug("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
