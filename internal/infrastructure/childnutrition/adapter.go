package childnutrition

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nutriplan/backend/internal/domain"
)

// Child Nutrition nutrient codes
const (
	NutrientCodeEnergy   = 208 // kcal
	NutrientCodeProtein  = 203 // g
	NutrientCodeFat      = 204 // g
	NutrientCodeCarbs    = 205 // g
	NutrientCodeFiber    = 291 // g
	NutrientCodeSugars   = 269 // g
	NutrientCodeSodium   = 307 // mg
	NutrientCodeCalcium  = 301 // mg
	NutrientCodeIron     = 303 // mg
	NutrientCodeVitaminC = 401 // mg
	NutrientCodeVitaminA = 320 // µg RAE
)

var nutrientCodes = map[int]domain.NutrientCode{
	NutrientCodeEnergy:   domain.NutrientCalories,
	NutrientCodeProtein:  domain.NutrientProtein,
	NutrientCodeFat:      domain.NutrientFat,
	NutrientCodeCarbs:    domain.NutrientCarbs,
	NutrientCodeFiber:    domain.NutrientFiber,
	NutrientCodeSugars:   domain.NutrientSugars,
	NutrientCodeSodium:   domain.NutrientSodium,
	NutrientCodeCalcium:  domain.NutrientCalcium,
	NutrientCodeIron:     domain.NutrientIron,
	NutrientCodeVitaminC: domain.NutrientVitaminC,
	NutrientCodeVitaminA: domain.NutrientVitaminA,
}

// DataType labels every Child Nutrition item
const DataType = "Child Nutrition"

// Adapter exposes the local dataset for text search and GTIN lookup
type Adapter struct {
	store  *Store
	logger *zap.Logger
}

// NewAdapter wraps an opened Store
func NewAdapter(store *Store, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{store: store, logger: logger}
}

func (a *Adapter) Source() domain.Source { return domain.SourceChildNutrition }
func (a *Adapter) Scope() domain.Scope   { return domain.ScopeChildNutrition }

func (a *Adapter) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityFoodSearch, domain.CapabilityBarcodeLookup}
}

// Search serves food text queries and barcode queries. A data type filter
// that does not name Child Nutrition matches nothing here.
func (a *Adapter) Search(ctx context.Context, q domain.NormalizedQuery) domain.ProviderResult {
	switch q.Kind() {
	case domain.KindFood:
		if !acceptsDataType(q.Filter(domain.FilterDataType)) {
			return domain.OKResult(domain.SourceChildNutrition, nil, 0, 0)
		}
		foods, total, err := a.store.Search(ctx, q.Text(), q.Filter(domain.FilterCategory), q.FetchDepth())
		if err != nil {
			return domain.FailedResult(domain.SourceChildNutrition, err)
		}
		items, dropped := MapFoods(foods)
		if dropped > 0 {
			a.logger.Debug("dropped malformed foods", zap.String("source", string(domain.SourceChildNutrition)), zap.Int("dropped", dropped))
		}
		return domain.OKResult(domain.SourceChildNutrition, items, total, dropped)

	case domain.KindBarcode:
		item, err := a.ByBarcode(ctx, q.Text())
		if errors.Is(err, domain.ErrNotFound) {
			return domain.OKResult(domain.SourceChildNutrition, nil, 0, 0)
		}
		if err != nil {
			return domain.FailedResult(domain.SourceChildNutrition, err)
		}
		return domain.OKResult(domain.SourceChildNutrition, []domain.Item{*item}, 1, 0)
	}

	return domain.FailedResult(domain.SourceChildNutrition, fmt.Errorf("%w: child nutrition cannot serve %s queries", domain.ErrInvalidQuery, q.Kind()))
}

// ByID looks a food up by its CN code
func (a *Adapter) ByID(ctx context.Context, id string) (domain.Item, error) {
	code, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("%w: cn code must be numeric, got %q", domain.ErrInvalidQuery, id)
	}
	food, err := a.store.ByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	item, ok := MapFood(food)
	if !ok {
		return nil, fmt.Errorf("%w: malformed food %s", domain.ErrProviderFailure, id)
	}
	return item, nil
}

// ByBarcode resolves a GTIN/UPC
func (a *Adapter) ByBarcode(ctx context.Context, code string) (*domain.FoodItem, error) {
	food, err := a.store.ByGTIN(ctx, code)
	if err != nil {
		return nil, err
	}
	item, ok := MapFood(food)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

// Stats reports the dataset size
func (a *Adapter) Stats(ctx context.Context) (domain.SourceStats, error) {
	total, branded, err := a.store.Counts(ctx)
	if err != nil {
		return domain.SourceStats{}, err
	}
	return domain.SourceStats{TotalFoods: total, BrandedFoods: &branded}, nil
}

// MapFood converts a stored food to the shared schema
func MapFood(f *Food) (domain.FoodItem, bool) {
	if f == nil || f.Code <= 0 || f.Descriptor == "" {
		return domain.FoodItem{}, false
	}

	brand := f.BrandName
	if brand == "" {
		brand = f.BrandOwner
	}

	nutrients := make(map[domain.NutrientCode]float64)
	for code, value := range f.Nutrients {
		if name, ok := nutrientCodes[code]; ok {
			nutrients[name] = value
		}
	}

	var portions []domain.Portion
	for _, w := range f.Weights {
		// Only gram weights convert to a portion weight
		if w.TypeOfUnit != "" && !strings.EqualFold(w.TypeOfUnit, "g") {
			continue
		}
		portions = append(portions, domain.Portion{
			Description: w.Description,
			Amount:      w.Amount,
			GramWeight:  w.UnitAmount,
		})
	}

	return domain.FoodItem{
		ID:          strconv.Itoa(f.Code),
		Source:      domain.SourceChildNutrition,
		Description: f.Descriptor,
		Brand:       brand,
		Category:    f.Category,
		DataType:    DataType,
		Barcode:     f.GTIN,
		ServingSize: "100 g",
		Nutrients:   nutrients,
		Portions:    portions,
	}, true
}

// acceptsDataType reports whether a comma separated data type filter
// includes Child Nutrition. An empty filter accepts everything.
func acceptsDataType(filter string) bool {
	if filter == "" {
		return true
	}
	for _, t := range strings.Split(filter, ",") {
		if strings.EqualFold(strings.TrimSpace(t), DataType) {
			return true
		}
	}
	return false
}

// MapFoods maps a search page, counting malformed rows
func MapFoods(foods []Food) ([]domain.Item, int) {
	items := make([]domain.Item, 0, len(foods))
	dropped := 0
	for i := range foods {
		item, ok := MapFood(&foods[i])
		if !ok {
			dropped++
			continue
		}
		items = append(items, item)
	}
	return items, dropped
}
