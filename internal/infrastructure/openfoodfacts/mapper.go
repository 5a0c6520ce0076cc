package openfoodfacts

import (
	"strconv"
	"strings"

	"github.com/nutriplan/backend/internal/domain"
)

// nutriment keys (per 100 g) and the factor converting Open Food Facts' unit
// to the shared vocabulary's unit. Minerals and vitamins are stored in grams.
var nutriments = []struct {
	key    string
	code   domain.NutrientCode
	factor float64
}{
	{"energy-kcal_100g", domain.NutrientCalories, 1},
	{"proteins_100g", domain.NutrientProtein, 1},
	{"fat_100g", domain.NutrientFat, 1},
	{"carbohydrates_100g", domain.NutrientCarbs, 1},
	{"fiber_100g", domain.NutrientFiber, 1},
	{"sugars_100g", domain.NutrientSugars, 1},
	{"sodium_100g", domain.NutrientSodium, 1000},
	{"calcium_100g", domain.NutrientCalcium, 1000},
	{"iron_100g", domain.NutrientIron, 1000},
	{"vitamin-c_100g", domain.NutrientVitaminC, 1000},
	{"vitamin-a_100g", domain.NutrientVitaminA, 1e6},
}

// DataType labels every Open Food Facts item
const DataType = "Open Food Facts"

// MapProduct converts a product to the shared schema. ok is false when the
// product has neither a code nor a name.
func MapProduct(p *Product) (domain.FoodItem, bool) {
	if p == nil || strings.TrimSpace(p.Code) == "" {
		return domain.FoodItem{}, false
	}

	description := strings.TrimSpace(p.ProductName)
	if description == "" {
		description = strings.TrimSpace(p.GenericName)
	}
	if description == "" {
		return domain.FoodItem{}, false
	}

	item := domain.FoodItem{
		ID:          p.Code,
		Source:      domain.SourceOpenFoodFacts,
		Description: description,
		Brand:       firstListEntry(p.Brands),
		Category:    firstListEntry(p.Categories),
		DataType:    DataType,
		Barcode:     p.Code,
		ServingSize: strings.TrimSpace(p.ServingSize),
		Ingredients: strings.TrimSpace(p.IngredientsText),
		Nutrients:   make(map[domain.NutrientCode]float64),
	}

	for _, n := range nutriments {
		if v, ok := number(p.Nutriments[n.key]); ok {
			item.Nutrients[n.code] = v * n.factor
		}
	}
	return item, true
}

// firstListEntry returns the first entry of a comma separated tag list
func firstListEntry(list string) string {
	first, _, _ := strings.Cut(list, ",")
	return strings.TrimSpace(first)
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
