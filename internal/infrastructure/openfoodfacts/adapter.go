package openfoodfacts

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nutriplan/backend/internal/domain"
)

type productClient interface {
	GetProduct(ctx context.Context, code string) (*Product, error)
}

// Adapter exposes Open Food Facts as a barcode-lookup provider
type Adapter struct {
	client productClient
	logger *zap.Logger
}

// NewAdapter wraps an Open Food Facts client
func NewAdapter(client productClient, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: client, logger: logger}
}

func (a *Adapter) Source() domain.Source { return domain.SourceOpenFoodFacts }
func (a *Adapter) Scope() domain.Scope   { return domain.ScopeBarcode }

func (a *Adapter) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityBarcodeLookup}
}

// Search answers barcode queries with zero or one item
func (a *Adapter) Search(ctx context.Context, q domain.NormalizedQuery) domain.ProviderResult {
	if q.Kind() != domain.KindBarcode {
		return domain.FailedResult(domain.SourceOpenFoodFacts, fmt.Errorf("%w: open food facts only serves barcode queries", domain.ErrInvalidQuery))
	}

	item, err := a.ByBarcode(ctx, q.Text())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.OKResult(domain.SourceOpenFoodFacts, nil, 0, 0)
	case err != nil:
		return domain.FailedResult(domain.SourceOpenFoodFacts, err)
	}
	return domain.OKResult(domain.SourceOpenFoodFacts, []domain.Item{*item}, 1, 0)
}

// ByID is a barcode lookup: product ids are barcodes
func (a *Adapter) ByID(ctx context.Context, id string) (domain.Item, error) {
	item, err := a.ByBarcode(ctx, id)
	if err != nil {
		return nil, err
	}
	return *item, nil
}

// ByBarcode fetches and maps one product
func (a *Adapter) ByBarcode(ctx context.Context, code string) (*domain.FoodItem, error) {
	product, err := a.client.GetProduct(ctx, code)
	if err != nil {
		return nil, err
	}
	item, ok := MapProduct(product)
	if !ok {
		a.logger.Debug("dropped malformed product", zap.String("code", code))
		return nil, domain.ErrNotFound
	}
	return &item, nil
}
