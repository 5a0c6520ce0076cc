package usda

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nutriplan/backend/internal/domain"
)

// searcher is the slice of Client the adapter needs
type searcher interface {
	SearchFoods(ctx context.Context, p SearchParams) (*SearchResponse, error)
	GetFoodDetails(ctx context.Context, fdcID string) (*Food, error)
}

// Adapter exposes FoodData Central as a food-search provider
type Adapter struct {
	client searcher
	logger *zap.Logger
}

// NewAdapter wraps a USDA client
func NewAdapter(client searcher, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: client, logger: logger}
}

func (a *Adapter) Source() domain.Source { return domain.SourceUSDA }
func (a *Adapter) Scope() domain.Scope   { return domain.ScopeUSDA }

func (a *Adapter) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityFoodSearch}
}

// MaxSearchPages bounds the upstream pages one search reads. Reported
// totals are capped at what these pages can reach.
const MaxSearchPages = 10

// Search runs a food text search. FoodData Central serves at most
// MaxPageSize foods per request, so deeper result sets are read page by
// page. The dataType filter replaces the default data type list; the
// category filter keeps foods whose category description matches.
func (a *Adapter) Search(ctx context.Context, q domain.NormalizedQuery) domain.ProviderResult {
	if q.Kind() != domain.KindFood {
		return domain.FailedResult(domain.SourceUSDA, fmt.Errorf("%w: usda cannot serve %s queries", domain.ErrInvalidQuery, q.Kind()))
	}

	params := SearchParams{Query: q.Text(), DataTypes: q.Filter(domain.FilterDataType)}

	var (
		foods []Food
		total int
		err   error
	)
	if category := q.Filter(domain.FilterCategory); category != "" {
		foods, total, err = a.searchCategory(ctx, params, category, q.FetchDepth())
	} else {
		foods, total, err = a.searchDepth(ctx, params, q.FetchDepth())
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.OKResult(domain.SourceUSDA, nil, 0, 0)
	}
	if err != nil {
		return domain.FailedResult(domain.SourceUSDA, err)
	}

	items, dropped := MapSearchResults(foods)
	if dropped > 0 {
		a.logger.Debug("dropped malformed foods", zap.String("source", string(domain.SourceUSDA)), zap.Int("dropped", dropped))
	}
	return domain.OKResult(domain.SourceUSDA, items, total, dropped)
}

// searchDepth returns the first depth foods. Pages after the first are
// fetched concurrently; any failed page fails the search.
func (a *Adapter) searchDepth(ctx context.Context, params SearchParams, depth int) ([]Food, int, error) {
	params.PageSize = min(depth, MaxPageSize)
	params.PageNumber = 1

	first, err := a.client.SearchFoods(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total := min(first.TotalHits, MaxPageSize*MaxSearchPages)

	pages := min((min(depth, total)+params.PageSize-1)/params.PageSize, MaxSearchPages)
	if pages <= 1 || len(first.Foods) < params.PageSize {
		return first.Foods, total, nil
	}

	rest := make([][]Food, pages-1)
	g, gctx := errgroup.WithContext(ctx)
	for i := range rest {
		g.Go(func() error {
			p := params
			p.PageNumber = i + 2
			resp, err := a.client.SearchFoods(gctx, p)
			if err != nil {
				return fmt.Errorf("page %d: %w", p.PageNumber, err)
			}
			rest[i] = resp.Foods
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	foods := first.Foods
	for _, page := range rest {
		foods = append(foods, page...)
	}
	if len(foods) > depth {
		foods = foods[:depth]
	}
	return foods, total, nil
}

// searchCategory reads full pages in order until depth foods of the
// category are found or the results run out. The total is only known when
// they run out.
func (a *Adapter) searchCategory(ctx context.Context, params SearchParams, category string, depth int) ([]Food, int, error) {
	params.PageSize = MaxPageSize

	var matched []Food
	for page := 1; page <= MaxSearchPages; page++ {
		params.PageNumber = page
		resp, err := a.client.SearchFoods(ctx, params)
		if err != nil {
			return nil, 0, err
		}
		for i := range resp.Foods {
			if strings.EqualFold(strings.TrimSpace(categoryOf(&resp.Foods[i])), category) {
				matched = append(matched, resp.Foods[i])
			}
		}

		if len(resp.Foods) < MaxPageSize || page*MaxPageSize >= resp.TotalHits {
			total := len(matched)
			return matched[:min(len(matched), depth)], total, nil
		}
		if len(matched) >= depth {
			break
		}
	}
	return matched[:min(len(matched), depth)], domain.TotalUnknown, nil
}

// ByID fetches the full record for an FDC id
func (a *Adapter) ByID(ctx context.Context, id string) (domain.Item, error) {
	food, err := a.client.GetFoodDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	item, ok := MapToFoodItem(food)
	if !ok {
		return nil, fmt.Errorf("%w: malformed food %s", domain.ErrProviderFailure, id)
	}
	return item, nil
}

// Stats reports the total and branded food counts, read from the hit counts
// of wildcard searches.
func (a *Adapter) Stats(ctx context.Context) (domain.SourceStats, error) {
	var total, branded int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := a.client.SearchFoods(gctx, SearchParams{Query: "*", PageSize: 1})
		if err != nil {
			return err
		}
		total = resp.TotalHits
		return nil
	})
	g.Go(func() error {
		resp, err := a.client.SearchFoods(gctx, SearchParams{Query: "*", PageSize: 1, DataTypes: "Branded"})
		if err != nil {
			return err
		}
		branded = resp.TotalHits
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.SourceStats{}, err
	}

	return domain.SourceStats{TotalFoods: total, BrandedFoods: &branded}, nil
}
