package spoonacular

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nutriplan/backend/internal/domain"
)

// Recipe search filters understood by this adapter
const (
	FilterDiet         = "diet"
	FilterIntolerances = "intolerances"
)

// recipeClient is the slice of Client the adapter needs
type recipeClient interface {
	SearchRecipes(ctx context.Context, p SearchParams) (*SearchResponse, error)
	GetRecipeInformation(ctx context.Context, id string) (*Recipe, error)
}

// Adapter exposes Spoonacular as the recipe-search provider
type Adapter struct {
	client recipeClient
	logger *zap.Logger
}

// NewAdapter wraps a Spoonacular client
func NewAdapter(client recipeClient, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: client, logger: logger}
}

func (a *Adapter) Source() domain.Source { return domain.SourceSpoonacular }
func (a *Adapter) Scope() domain.Scope   { return domain.ScopeRecipes }

func (a *Adapter) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityRecipeSearch}
}

// Search runs a recipe search for the first FetchDepth results (capped at
// MaxNumber by the client).
func (a *Adapter) Search(ctx context.Context, q domain.NormalizedQuery) domain.ProviderResult {
	if q.Kind() != domain.KindRecipe {
		return domain.FailedResult(domain.SourceSpoonacular, fmt.Errorf("%w: spoonacular cannot serve %s queries", domain.ErrInvalidQuery, q.Kind()))
	}

	resp, err := a.client.SearchRecipes(ctx, SearchParams{
		Query:        q.Text(),
		Number:       q.FetchDepth(),
		Diet:         q.Filter(FilterDiet),
		Intolerances: q.Filter(FilterIntolerances),
	})
	if errors.Is(err, domain.ErrNotFound) {
		return domain.OKResult(domain.SourceSpoonacular, nil, 0, 0)
	}
	if err != nil {
		return domain.FailedResult(domain.SourceSpoonacular, err)
	}

	items, dropped := MapSearchResults(resp.Results)
	if dropped > 0 {
		a.logger.Debug("dropped malformed recipes", zap.String("source", string(domain.SourceSpoonacular)), zap.Int("dropped", dropped))
	}
	return domain.OKResult(domain.SourceSpoonacular, items, resp.TotalResults, dropped)
}

// ByID returns the full recipe
func (a *Adapter) ByID(ctx context.Context, id string) (domain.Item, error) {
	recipe, err := a.client.GetRecipeInformation(ctx, id)
	if err != nil {
		return nil, err
	}
	item, ok := MapRecipe(recipe, true)
	if !ok {
		return nil, fmt.Errorf("%w: malformed recipe %s", domain.ErrProviderFailure, id)
	}
	return item, nil
}
