package openfoodfacts

import (
	"testing"

	"github.com/nutriplan/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapProduct(t *testing.T) {
	product := &Product{
		Code:        "3017620422003",
		ProductName: " Nutella ",
		Brands:      "Ferrero, Nutella",
		Categories:  "Spreads, Sweet spreads",
		ServingSize: "15 g",
		Nutriments: map[string]interface{}{
			"energy-kcal_100g":   539.0,
			"proteins_100g":      "6.3",
			"sodium_100g":        0.0428,
			"calcium_100g":       "n/a",
			"unrelated_100g":     1.0,
			"carbohydrates_100g": 57.5,
		},
	}

	item, ok := MapProduct(product)
	require.True(t, ok)

	assert.Equal(t, "3017620422003", item.ID)
	assert.Equal(t, domain.SourceOpenFoodFacts, item.Source)
	assert.Equal(t, "Nutella", item.Description)
	assert.Equal(t, "Ferrero", item.Brand)
	assert.Equal(t, "Spreads", item.Category)
	assert.Equal(t, "3017620422003", item.Barcode)
	assert.Equal(t, 539.0, item.Nutrients[domain.NutrientCalories])
	assert.Equal(t, 6.3, item.Nutrients[domain.NutrientProtein])
	assert.InDelta(t, 42.8, item.Nutrients[domain.NutrientSodium], 1e-9)
	assert.NotContains(t, item.Nutrients, domain.NutrientCalcium)
	assert.Len(t, item.Nutrients, 4)
}

func TestMapProduct_GenericNameFallback(t *testing.T) {
	item, ok := MapProduct(&Product{Code: "12345670", GenericName: "Hazelnut spread"})
	require.True(t, ok)
	assert.Equal(t, "Hazelnut spread", item.Description)
}

func TestMapProduct_Malformed(t *testing.T) {
	for _, p := range []*Product{nil, {Code: ""}, {Code: "12345670"}} {
		_, ok := MapProduct(p)
		assert.False(t, ok)
	}
}
