package usda

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/nutriplan/backend/internal/domain"
)

// USDA Nutrient IDs mapped onto the shared nutrient vocabulary
const (
	NutrientIDEnergy       = 1008 // Calories (kcal)
	NutrientIDProtein      = 1003 // Protein (g)
	NutrientIDTotalFat     = 1004 // Total lipid (fat) (g)
	NutrientIDCarbohydrate = 1005 // Carbohydrate, by difference (g)
	NutrientIDFiber        = 1079 // Fiber, total dietary (g)
	NutrientIDSugars       = 2000 // Sugars, total including NLEA (g)
	NutrientIDSodium       = 1093 // Sodium, Na (mg)
	NutrientIDCalcium      = 1087 // Calcium, Ca (mg)
	NutrientIDIron         = 1089 // Iron, Fe (mg)
	NutrientIDVitaminC     = 1162 // Vitamin C, total ascorbic acid (mg)
	NutrientIDVitaminA     = 1106 // Vitamin A, RAE (µg)
)

var nutrientCodes = map[int]domain.NutrientCode{
	NutrientIDEnergy:       domain.NutrientCalories,
	NutrientIDProtein:      domain.NutrientProtein,
	NutrientIDTotalFat:     domain.NutrientFat,
	NutrientIDCarbohydrate: domain.NutrientCarbs,
	NutrientIDFiber:        domain.NutrientFiber,
	NutrientIDSugars:       domain.NutrientSugars,
	NutrientIDSodium:       domain.NutrientSodium,
	NutrientIDCalcium:      domain.NutrientCalcium,
	NutrientIDIron:         domain.NutrientIron,
	NutrientIDVitaminC:     domain.NutrientVitaminC,
	NutrientIDVitaminA:     domain.NutrientVitaminA,
}

// MapToFoodItem converts a USDA food to the shared FoodItem schema.
// ok is false for malformed foods (no id or no description).
func MapToFoodItem(food *Food) (domain.FoodItem, bool) {
	if food == nil || food.FdcID <= 0 || strings.TrimSpace(food.Description) == "" {
		return domain.FoodItem{}, false
	}

	brand := food.BrandName
	if brand == "" {
		brand = food.BrandOwner
	}

	item := domain.FoodItem{
		ID:          strconv.Itoa(food.FdcID),
		Source:      domain.SourceUSDA,
		Description: strings.TrimSpace(food.Description),
		Brand:       brand,
		Category:    categoryOf(food),
		DataType:    food.DataType,
		Barcode:     food.GtinUpc,
		Ingredients: food.Ingredients,
		Nutrients:   extractNutrients(food.Nutrients),
		Portions:    mapPortions(food.FoodPortions),
	}
	if food.ServingSize > 0 {
		item.ServingSize = strconv.FormatFloat(food.ServingSize, 'f', -1, 64) + " " + food.ServingUnit
		item.ServingSize = strings.TrimSpace(item.ServingSize)
	}
	if food.Score != nil {
		item.Score = domain.Float64Ptr(*food.Score)
	}
	return item, true
}

// categoryOf reads the category from either the search or the detail shape
func categoryOf(food *Food) string {
	if food.FoodCategory != "" {
		return food.FoodCategory
	}
	if food.FoodCategoryDetail != nil {
		return food.FoodCategoryDetail.Description
	}
	return ""
}

// mapPortions keeps portions with a weight, in sequence order. Survey foods
// describe the portion in portionDescription; Foundation and SR Legacy foods
// use the measure unit and modifier instead.
func mapPortions(in []FoodPortion) []domain.Portion {
	sorted := slices.Clone(in)
	slices.SortStableFunc(sorted, func(a, b FoodPortion) int {
		return cmp.Compare(a.SequenceNumber, b.SequenceNumber)
	})

	var portions []domain.Portion
	for _, p := range sorted {
		if p.GramWeight <= 0 {
			continue
		}
		description := strings.TrimSpace(p.PortionDescription)
		modifier := strings.TrimSpace(p.Modifier)
		if description == "" || description == "Quantity not specified" {
			unit := ""
			if p.MeasureUnit != nil && p.MeasureUnit.Name != "undetermined" {
				unit = p.MeasureUnit.Name
			}
			description = strings.TrimSpace(unit + " " + modifier)
			modifier = ""
		}
		if description == "" {
			continue
		}
		portions = append(portions, domain.Portion{
			Description: description,
			Amount:      p.Amount,
			Modifier:    modifier,
			GramWeight:  p.GramWeight,
		})
	}
	return portions
}

// MapSearchResults maps every well-formed food and counts the dropped ones
func MapSearchResults(foods []Food) ([]domain.Item, int) {
	items := make([]domain.Item, 0, len(foods))
	dropped := 0
	for i := range foods {
		item, ok := MapToFoodItem(&foods[i])
		if !ok {
			dropped++
			continue
		}
		items = append(items, item)
	}
	return items, dropped
}

// extractNutrients reads both the flat search shape and the nested detail shape
func extractNutrients(usdaNutrients []Nutrient) map[domain.NutrientCode]float64 {
	nutrients := make(map[domain.NutrientCode]float64)

	for _, n := range usdaNutrients {
		id, value := n.NutrientID, n.Value
		if n.Nutrient != nil {
			id = n.Nutrient.ID
		}
		if n.Amount != nil {
			value = *n.Amount
		}
		if code, ok := nutrientCodes[id]; ok {
			nutrients[code] = value
		}
	}

	return nutrients
}
