package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nutriplan/backend/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock is a manually advanced clock shared by the trackers and the cache mock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockEntry struct {
	value     interface{}
	expiresAt time.Time
}

// MockCacheRepository is a mock implementation of domain.CacheRepository
// with TTL expiry against a fake clock
type MockCacheRepository struct {
	mu       sync.Mutex
	data     map[string]mockEntry
	clock    *fakeClock
	getError error
	setError error
	gets     int
	sets     int
	lastTTL  map[string]time.Duration
}

func NewMockCacheRepository(clock *fakeClock) *MockCacheRepository {
	if clock == nil {
		clock = newFakeClock()
	}
	return &MockCacheRepository{
		data:    make(map[string]mockEntry),
		clock:   clock,
		lastTTL: make(map[string]time.Duration),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getError != nil {
		return nil, m.getError
	}
	entry, ok := m.data[key]
	if !ok || !m.clock.Now().Before(entry.expiresAt) {
		return nil, domain.ErrCacheMiss
	}
	return entry.value, nil
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setError != nil {
		return m.setError
	}
	m.data[key] = mockEntry{value: value, expiresAt: m.clock.Now().Add(ttl)}
	m.lastTTL[key] = ttl
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MockCacheRepository) ttl(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTTL[key]
}

// stubAdapter is a call-counting adapter. result decides what each search
// returns; call counts from 1.
type stubAdapter struct {
	source domain.Source
	scope  domain.Scope
	caps   []domain.Capability
	delay  time.Duration
	result func(q domain.NormalizedQuery, call int) domain.ProviderResult

	items   map[string]domain.Item
	byIDErr error

	calls     atomic.Int32
	idCalls   atomic.Int32
	mu        sync.Mutex
	lastQuery domain.NormalizedQuery
}

func newFoodStub(source domain.Source, scope domain.Scope) *stubAdapter {
	return &stubAdapter{source: source, scope: scope, caps: []domain.Capability{domain.CapabilityFoodSearch}}
}

func (s *stubAdapter) Source() domain.Source             { return s.source }
func (s *stubAdapter) Scope() domain.Scope               { return s.scope }
func (s *stubAdapter) Capabilities() []domain.Capability { return s.caps }

func (s *stubAdapter) Search(ctx context.Context, q domain.NormalizedQuery) domain.ProviderResult {
	n := int(s.calls.Add(1))
	s.mu.Lock()
	s.lastQuery = q
	s.mu.Unlock()

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return domain.FailedResult(s.source, ctx.Err())
		}
	}
	if s.result == nil {
		return domain.OKResult(s.source, nil, 0, 0)
	}
	return s.result(q, n)
}

func (s *stubAdapter) ByID(ctx context.Context, id string) (domain.Item, error) {
	s.idCalls.Add(1)
	if s.byIDErr != nil {
		return nil, s.byIDErr
	}
	item, ok := s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *stubAdapter) Calls() int { return int(s.calls.Load()) }

func (s *stubAdapter) LastQuery() domain.NormalizedQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

// statsAdapter adds a StatsReporter to a stub
type statsAdapter struct {
	*stubAdapter
	stats domain.SourceStats
	err   error
}

func (s *statsAdapter) Stats(ctx context.Context) (domain.SourceStats, error) {
	return s.stats, s.err
}

// stubAnalyzer counts Analyze calls
type stubAnalyzer struct {
	totals map[domain.NutrientCode]float64
	err    error
	calls  atomic.Int32
}

func (a *stubAnalyzer) Analyze(ctx context.Context, ingredients []string) (map[domain.NutrientCode]float64, error) {
	a.calls.Add(1)
	if a.err != nil {
		return nil, a.err
	}
	return a.totals, nil
}

func makeFoods(source domain.Source, n int, description string) []domain.Item {
	items := make([]domain.Item, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, domain.FoodItem{
			ID:          fmt.Sprintf("%s-%02d", source, i),
			Source:      source,
			Description: fmt.Sprintf("%s %d", description, i),
			Nutrients:   map[domain.NutrientCode]float64{},
		})
	}
	return items
}

func returning(result domain.ProviderResult) func(domain.NormalizedQuery, int) domain.ProviderResult {
	return func(domain.NormalizedQuery, int) domain.ProviderResult { return result }
}

func foodQuery(t *testing.T, text string, page, pageSize int) domain.NormalizedQuery {
	t.Helper()
	q, err := domain.NewNormalizedQuery(domain.KindFood, text, domain.ScopeAll, page, pageSize, nil, 100)
	if err != nil {
		t.Fatalf("building query: %v", err)
	}
	return q
}

var testCoordinatorConfig = CoordinatorConfig{
	AdapterTimeout: 50 * time.Millisecond,
	OKTTL:          10 * time.Minute,
	NegativeTTL:    30 * time.Second,
}

// newTestCoordinator wires trackers to the fake clock
func newTestCoordinator(cache domain.CacheRepository, clock *fakeClock) *Coordinator {
	backoff := NewBackoffTracker(20 * time.Second)
	health := NewHealthTracker()
	if clock != nil {
		backoff.now = clock.Now
		health.now = clock.Now
	}
	return NewCoordinator(cache, backoff, health, testCoordinatorConfig, nil)
}

func newTestService(t *testing.T, cache domain.CacheRepository, clock *fakeClock, analyzer domain.NutritionAnalyzer, adapters ...domain.Adapter) *AggregatorService {
	t.Helper()
	router, err := NewQueryRouter(adapters...)
	if err != nil {
		t.Fatalf("building router: %v", err)
	}
	return NewAggregatorService(router, newTestCoordinator(cache, clock), analyzer, cache, AggregatorConfig{
		DefaultPageSize: 20,
		MaxPageSize:     100,
		SuggestionLimit: 5,
		StatsTimeout:    200 * time.Millisecond,
	}, nil)
}

func errTimeout() error {
	return context.DeadlineExceeded
}
