package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nutriplan/backend/internal/domain"
)

// AggregatorConfig holds configuration for the aggregator service
type AggregatorConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	// SuggestionLimit caps suggestions when the caller gives no limit
	SuggestionLimit int
	// StatsTimeout bounds the whole database statistics fan-out
	StatsTimeout time.Duration
	// AnalysisTTL is how long nutrition analyses are cached
	AnalysisTTL time.Duration
}

// AggregatorService implements the query contract: it routes a query,
// fans it out through the coordinator and merges what comes back.
type AggregatorService struct {
	router      *QueryRouter
	coordinator *Coordinator
	merger      *MergeEngine
	normalizer  *QueryNormalizer
	analyzer    domain.NutritionAnalyzer
	cache       domain.CacheRepository
	config      AggregatorConfig
	logger      *zap.Logger
}

// NewAggregatorService creates the service. analyzer and cache may be nil.
func NewAggregatorService(
	router *QueryRouter,
	coordinator *Coordinator,
	analyzer domain.NutritionAnalyzer,
	cache domain.CacheRepository,
	config AggregatorConfig,
	logger *zap.Logger,
) *AggregatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SuggestionLimit <= 0 {
		config.SuggestionLimit = 10
	}
	if config.StatsTimeout <= 0 {
		config.StatsTimeout = 5 * time.Second
	}
	if config.AnalysisTTL <= 0 {
		config.AnalysisTTL = 24 * time.Hour
	}

	normalizer := NewQueryNormalizer(NormalizerConfig{
		DefaultPageSize: config.DefaultPageSize,
		MaxPageSize:     config.MaxPageSize,
	})

	return &AggregatorService{
		router:      router,
		coordinator: coordinator,
		merger:      NewMergeEngine(normalizer.MaxPageSize()),
		normalizer:  normalizer,
		analyzer:    analyzer,
		cache:       cache,
		config:      config,
		logger:      logger,
	}
}

// SearchFoods searches the food databases selected by database ("" or "all",
// "usda", "childNutrition"), narrowed by filters. Degraded sources make the
// page partial, never an error.
func (s *AggregatorService) SearchFoods(ctx context.Context, text, database string, filters domain.FoodFilters, page, pageSize int) (domain.AggregatedPage, error) {
	q, err := s.normalizer.FoodQuery(text, database, filters, page, pageSize)
	if err != nil {
		return domain.AggregatedPage{}, err
	}
	return s.search(ctx, q)
}

// SearchRecipes searches recipes, returning the first count results
func (s *AggregatorService) SearchRecipes(ctx context.Context, text string, count int, diet, intolerances string) (domain.AggregatedPage, error) {
	q, err := s.normalizer.RecipeQuery(text, count, diet, intolerances)
	if err != nil {
		return domain.AggregatedPage{}, err
	}
	return s.search(ctx, q)
}

// search is the route, dispatch, merge pipeline shared by every fan-out query
func (s *AggregatorService) search(ctx context.Context, q domain.NormalizedQuery) (domain.AggregatedPage, error) {
	adapters, err := s.router.Route(q.Kind(), q.Scope())
	if err != nil {
		return domain.AggregatedPage{}, err
	}
	if len(adapters) == 0 {
		return domain.AggregatedPage{}, fmt.Errorf("%w: no source serves %s queries", domain.ErrProviderNotConfigured, q.Kind())
	}

	start := time.Now()
	results := s.coordinator.Dispatch(ctx, q, adapters)
	page, err := s.merger.Merge(q, results)
	if err != nil {
		return domain.AggregatedPage{}, err
	}

	fields := []zap.Field{
		zap.String("kind", string(q.Kind())),
		zap.String("scope", string(q.Scope())),
		zap.Int("page", page.Page),
		zap.Int("items", len(page.Items)),
		zap.Int("total_estimate", page.TotalEstimate),
		zap.Duration("latency", time.Since(start)),
	}
	if page.Partial {
		s.logger.Info("partial page", append(fields, zap.Any("degraded_sources", page.DegradedSources))...)
	} else {
		s.logger.Debug("page served", fields...)
	}
	return page, nil
}

// SearchByBarcode resolves a barcode against every barcode-capable source.
// The first source in registration order that knows the product wins.
// found is false when every source answered and none knew it.
func (s *AggregatorService) SearchByBarcode(ctx context.Context, code string) (*domain.FoodItem, bool, error) {
	q, err := s.normalizer.BarcodeQuery(code)
	if err != nil {
		return nil, false, err
	}
	adapters, err := s.router.Route(q.Kind(), q.Scope())
	if err != nil {
		return nil, false, err
	}
	if len(adapters) == 0 {
		return nil, false, fmt.Errorf("%w: no barcode source registered", domain.ErrProviderNotConfigured)
	}

	results := s.coordinator.Dispatch(ctx, q, adapters)

	answered := false
	for _, r := range results {
		if !r.OK() {
			continue
		}
		answered = true
		for _, item := range r.Items {
			if food, ok := item.(domain.FoodItem); ok {
				return &food, true, nil
			}
		}
	}
	if answered {
		return nil, false, nil
	}

	// Nobody could answer: report the most actionable failure
	for _, r := range results {
		if r.Status == domain.StatusRateLimited {
			return nil, false, &domain.RateLimitError{Source: r.Source, RetryAfter: r.RetryAfter}
		}
	}
	return nil, false, fmt.Errorf("%w: no barcode source answered", domain.ErrProviderFailure)
}

// GetSuggestions returns short food labels for autocomplete. Fewer than two
// characters yield nothing. The search runs on first iteration and is
// shared by later ones, so the sequence can be restarted for free.
func (s *AggregatorService) GetSuggestions(ctx context.Context, text, database string, limit int) (iter.Seq[string], error) {
	if len([]rune(strings.TrimSpace(text))) < 2 {
		return func(yield func(string) bool) {}, nil
	}
	if limit <= 0 {
		limit = s.config.SuggestionLimit
	}

	q, err := s.normalizer.SuggestionQuery(text, database, limit)
	if err != nil {
		return nil, err
	}
	adapters, err := s.router.Route(q.Kind(), q.Scope())
	if err != nil {
		return nil, err
	}

	var (
		once   sync.Once
		labels []string
	)
	load := func() {
		if len(adapters) == 0 {
			return
		}
		page, err := s.merger.Merge(q, s.coordinator.Dispatch(ctx, q, adapters))
		if err != nil {
			s.logger.Warn("suggestion merge failed", zap.Error(err))
			return
		}
		seen := make(map[string]struct{}, len(page.Items))
		for _, item := range page.Items {
			label := strings.TrimSpace(item.Label())
			key := strings.ToLower(label)
			if _, dup := seen[key]; dup || label == "" {
				continue
			}
			seen[key] = struct{}{}
			labels = append(labels, label)
			if len(labels) == limit {
				break
			}
		}
	}

	return func(yield func(string) bool) {
		once.Do(load)
		for _, label := range labels {
			if !yield(label) {
				return
			}
		}
	}, nil
}

// GetRecipeDetails returns the full recipe from the recipe source
func (s *AggregatorService) GetRecipeDetails(ctx context.Context, id string) (*domain.RecipeItem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: recipe id is required", domain.ErrInvalidQuery)
	}
	adapters, err := s.router.Route(domain.KindRecipe, domain.ScopeAll)
	if err != nil {
		return nil, err
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("%w: no recipe source registered", domain.ErrProviderNotConfigured)
	}

	item, err := s.coordinator.Lookup(ctx, adapters[0], id)
	if err != nil {
		return nil, err
	}
	recipe, ok := item.(domain.RecipeItem)
	if !ok {
		return nil, fmt.Errorf("%w: recipe %s", domain.ErrNotFound, id)
	}
	return &recipe, nil
}

// GetFoodDetails returns one food from the named source
func (s *AggregatorService) GetFoodDetails(ctx context.Context, source, id string) (*domain.FoodItem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: food id is required", domain.ErrInvalidQuery)
	}
	a, ok := s.router.Adapter(domain.Source(source))
	if !ok || !(domain.HasCapability(a, domain.CapabilityFoodSearch) || domain.HasCapability(a, domain.CapabilityBarcodeLookup)) {
		return nil, fmt.Errorf("%w: %q is not a registered food source", domain.ErrUnknownScope, source)
	}

	item, err := s.coordinator.Lookup(ctx, a, id)
	if err != nil {
		return nil, err
	}
	food, ok := item.(domain.FoodItem)
	if !ok {
		return nil, fmt.Errorf("%w: %s food %s", domain.ErrNotFound, source, id)
	}
	return &food, nil
}

// AnalyzeNutrition totals the nutrients of free-text ingredient lines.
// Results are cached by the normalized ingredient list.
func (s *AggregatorService) AnalyzeNutrition(ctx context.Context, ingredients []string) (map[domain.NutrientCode]float64, error) {
	if s.analyzer == nil {
		return nil, fmt.Errorf("%w: nutrition analysis", domain.ErrProviderNotConfigured)
	}

	lines := make([]string, 0, len(ingredients))
	for _, line := range ingredients {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one ingredient is required", domain.ErrInvalidQuery)
	}

	key := analysisCacheKey(lines)
	if s.cache != nil {
		if value, err := s.cache.Get(ctx, key); err == nil {
			if totals, ok := value.(map[domain.NutrientCode]float64); ok {
				return copyTotals(totals), nil
			}
		}
	}

	totals, err := s.analyzer.Analyze(ctx, lines)
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: nutrition analysis: %v", domain.ErrProviderFailure, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, copyTotals(totals), s.config.AnalysisTTL); err != nil {
			s.logger.Debug("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return totals, nil
}

// analysisCacheKey hashes the lower-cased ingredient lines.
// Format: "analysis:{sha256(lines)}"
func analysisCacheKey(lines []string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.Join(lines, "\n"))))
	return "analysis:" + hex.EncodeToString(sum[:])
}

func copyTotals(in map[domain.NutrientCode]float64) map[domain.NutrientCode]float64 {
	out := make(map[domain.NutrientCode]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidQuery,
		domain.ErrNotFound,
		domain.ErrRateLimited,
		domain.ErrProviderFailure,
		domain.ErrProviderNotConfigured,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// GetDatabaseStats asks every source that can report its size. Sources that
// fail or run out of time are listed as unreported and the status becomes
// partial.
func (s *AggregatorService) GetDatabaseStats(ctx context.Context) (domain.DatabaseStats, error) {
	type reporter struct {
		source domain.Source
		stats  domain.StatsReporter
	}
	var reporters []reporter
	for _, a := range s.router.Adapters() {
		if r, ok := a.(domain.StatsReporter); ok {
			reporters = append(reporters, reporter{source: a.Source(), stats: r})
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.StatsTimeout)
	defer cancel()

	reported := make([]*domain.SourceStats, len(reporters))
	// Join only: a failed source is left unreported, it never cancels the
	// other reporters.
	var g errgroup.Group
	for i, r := range reporters {
		g.Go(func() error {
			stats, err := r.stats.Stats(ctx)
			if err != nil {
				s.logger.Warn("source stats unavailable", zap.String("source", string(r.source)), zap.Error(err))
				return nil
			}
			reported[i] = &stats
			return nil
		})
	}
	_ = g.Wait()

	result := domain.DatabaseStats{
		PerSource: make(map[domain.Source]domain.SourceStats, len(reporters)),
		Status:    "ok",
	}
	for i, r := range reporters {
		if reported[i] == nil {
			result.Unreported = append(result.Unreported, r.source)
			continue
		}
		result.PerSource[r.source] = *reported[i]
		result.TotalFoods += reported[i].TotalFoods
	}
	if len(result.Unreported) > 0 {
		result.Status = "partial"
		sort.Slice(result.Unreported, func(i, j int) bool {
			return domain.SourceRank(result.Unreported[i]) < domain.SourceRank(result.Unreported[j])
		})
	}
	return result, nil
}

// GetStatus reports the health of every registered source, plus the cache
// counters when the cache keeps them
func (s *AggregatorService) GetStatus() domain.ServiceStatus {
	adapters := s.router.Adapters()
	status := domain.ServiceStatus{
		PerSource: make(map[domain.Source]domain.Health, len(adapters)),
		CheckedAt: make(map[domain.Source]time.Time),
	}
	for _, a := range adapters {
		status.PerSource[a.Source()] = s.coordinator.Health(a.Source())
		if at, ok := s.coordinator.LastChecked(a.Source()); ok {
			status.CheckedAt[a.Source()] = at
		}
	}
	if r, ok := s.cache.(domain.CacheStatsReporter); ok {
		stats := r.Stats()
		status.Cache = &stats
	}
	return status
}
