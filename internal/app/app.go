// Package app wires configuration into a ready aggregator service. Both
// binaries build their service through it.
package app

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/nutriplan/backend/config"
	"github.com/nutriplan/backend/internal/domain"
	"github.com/nutriplan/backend/internal/infrastructure/cache"
	"github.com/nutriplan/backend/internal/infrastructure/childnutrition"
	"github.com/nutriplan/backend/internal/infrastructure/edamam"
	"github.com/nutriplan/backend/internal/infrastructure/openfoodfacts"
	"github.com/nutriplan/backend/internal/infrastructure/spoonacular"
	"github.com/nutriplan/backend/internal/infrastructure/usda"
	"github.com/nutriplan/backend/internal/usecase"
)

// App owns the aggregator service and the resources behind it
type App struct {
	Service *usecase.AggregatorService
	// Sources lists the registered adapters in registration order
	Sources []domain.Source

	cache   *cache.MemoryCache
	cnStore *childnutrition.Store
}

// Build registers every provider the configuration enables. A provider
// without credentials or data is skipped with a warning, never an error.
func Build(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{}

	var adapters []domain.Adapter

	if cfg.USDA.APIKey != "" {
		client := usda.NewClient(cfg.USDA.APIKey, cfg.USDA.BaseURL, cfg.RateLimit.USDA, logger)
		adapters = append(adapters, usda.NewAdapter(client, logger))
	} else {
		logger.Warn("USDA API key not configured; source disabled")
	}

	if store, err := openChildNutrition(cfg.ChildNutrition.DBPath); err != nil {
		logger.Warn("child nutrition database unavailable; source disabled",
			zap.String("path", cfg.ChildNutrition.DBPath), zap.Error(err))
	} else {
		a.cnStore = store
		adapters = append(adapters, childnutrition.NewAdapter(store, logger))
	}

	off := openfoodfacts.NewClient(cfg.OpenFoodFacts.BaseURL, cfg.OpenFoodFacts.UserAgent, logger)
	adapters = append(adapters, openfoodfacts.NewAdapter(off, logger))

	if cfg.Spoonacular.APIKey != "" {
		client := spoonacular.NewClient(cfg.Spoonacular.APIKey, cfg.Spoonacular.BaseURL, cfg.RateLimit.Spoonacular, logger)
		adapters = append(adapters, spoonacular.NewAdapter(client, logger))
	} else {
		logger.Warn("Spoonacular API key not configured; recipe search disabled")
	}

	// nil interface, not a typed nil, when analysis is off
	var analyzer domain.NutritionAnalyzer
	if cfg.Edamam.AppID != "" && cfg.Edamam.AppKey != "" {
		analyzer = edamam.NewAnalyzer(cfg.Edamam.AppID, cfg.Edamam.AppKey, cfg.Edamam.BaseURL, logger)
	} else {
		logger.Warn("Edamam credentials not configured; nutrition analysis disabled")
	}

	router, err := usecase.NewQueryRouter(adapters...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("registering adapters: %w", err)
	}
	for _, adapter := range adapters {
		a.Sources = append(a.Sources, adapter.Source())
	}

	a.cache = cache.NewMemoryCache(cfg.Cache.MaxEntries)

	coordinator := usecase.NewCoordinator(
		a.cache,
		usecase.NewBackoffTracker(cfg.Aggregator.DefaultBackoff),
		usecase.NewHealthTracker(),
		usecase.CoordinatorConfig{
			AdapterTimeout: cfg.Aggregator.AdapterTimeout,
			OKTTL:          cfg.Cache.OKTTL,
			NegativeTTL:    cfg.Cache.NegativeTTL,
		},
		logger,
	)

	a.Service = usecase.NewAggregatorService(
		router,
		coordinator,
		analyzer,
		a.cache,
		usecase.AggregatorConfig{
			DefaultPageSize: cfg.Aggregator.DefaultPageSize,
			MaxPageSize:     cfg.Aggregator.MaxPageSize,
			SuggestionLimit: cfg.Aggregator.SuggestionLimit,
		},
		logger,
	)

	logger.Info("aggregator ready",
		zap.Int("sources", len(a.Sources)),
		zap.Bool("analysis", analyzer != nil),
		zap.Duration("adapter_timeout", cfg.Aggregator.AdapterTimeout))

	return a, nil
}

// openChildNutrition opens an existing dataset; it never creates an empty one
func openChildNutrition(path string) (*childnutrition.Store, error) {
	if path == "" {
		return nil, errors.New("no database path configured")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return childnutrition.Open(path)
}

// Close releases the cache janitor and the local database.
func (a *App) Close() error {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.cnStore != nil {
		return a.cnStore.Close()
	}
	return nil
}
