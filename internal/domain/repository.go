package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations.
// Implementations must replace entries atomically: a reader sees either the
// old or the new value, never a partial one.
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheStatsReporter is implemented by caches that count their traffic
type CacheStatsReporter interface {
	Stats() CacheStats
}

// Adapter translates between the shared query/result schema and one
// provider's native protocol.
type Adapter interface {
	Source() Source
	// Scope is the named database scope that selects this adapter alone.
	Scope() Scope
	Capabilities() []Capability
	// Search never returns transport errors; failures come back as a
	// degraded ProviderResult.
	Search(ctx context.Context, q NormalizedQuery) ProviderResult
	// ByID returns ErrNotFound when the provider has no such item.
	ByID(ctx context.Context, id string) (Item, error)
}

// BarcodeLookup is implemented by adapters that can resolve a product barcode.
type BarcodeLookup interface {
	ByBarcode(ctx context.Context, code string) (*FoodItem, error)
}

// StatsReporter is implemented by adapters that can report their dataset size.
type StatsReporter interface {
	Stats(ctx context.Context) (SourceStats, error)
}

// NutritionAnalyzer turns free-text ingredient lines into nutrient totals.
type NutritionAnalyzer interface {
	Analyze(ctx context.Context, ingredients []string) (map[NutrientCode]float64, error)
}

// HasCapability reports whether an adapter declares the capability.
func HasCapability(a Adapter, c Capability) bool {
	for _, have := range a.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}
