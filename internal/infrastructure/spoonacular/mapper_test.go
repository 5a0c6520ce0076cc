package spoonacular

import (
	"testing"

	"github.com/nutriplan/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRecipe(t *testing.T) {
	score := 87.5

	tests := []struct {
		name   string
		recipe *Recipe
		detail bool
		wantOK bool
		check  func(t *testing.T, item domain.RecipeItem)
	}{
		{
			name: "search result",
			recipe: &Recipe{
				ID: 1, Title: "  Lentil Soup ", ReadyInMinutes: 45, Servings: 4,
				Vegetarian: true, Vegan: true, DairyFree: true,
				SpoonacularScore: &score, Summary: "<p>ignored</p>",
			},
			wantOK: true,
			check: func(t *testing.T, item domain.RecipeItem) {
				assert.Equal(t, "1", item.ID)
				assert.Equal(t, domain.SourceSpoonacular, item.Source)
				assert.Equal(t, "Lentil Soup", item.Title)
				assert.Equal(t, []domain.DietFlag{domain.DietVegetarian, domain.DietVegan, domain.DietDairyFree}, item.DietFlags)
				require.NotNil(t, item.Score)
				assert.Equal(t, 87.5, *item.Score)
				assert.Empty(t, item.Summary, "summary only comes with details")
			},
		},
		{
			name:   "servings and time are clamped",
			recipe: &Recipe{ID: 2, Title: "Toast", ReadyInMinutes: -3, Servings: 0},
			wantOK: true,
			check: func(t *testing.T, item domain.RecipeItem) {
				assert.Equal(t, 0, item.ReadyInMinutes)
				assert.Equal(t, 1, item.Servings)
				assert.NotNil(t, item.DietFlags)
				assert.Nil(t, item.Score)
			},
		},
		{
			name: "detail",
			recipe: &Recipe{
				ID: 3, Title: "Pancakes", Servings: 2,
				Summary:             "Fluffy <b>pancakes</b>.<br>Serve warm.",
				Instructions:        "<ol><li>Mix.</li><li>Fry.</li></ol>",
				ExtendedIngredients: []Ingredient{{Original: "2 eggs"}, {Original: " "}, {Original: "1 cup flour"}},
				Nutrition: &Nutrition{Nutrients: []Nutrient{
					{Name: "Calories", Amount: 350, Unit: "kcal"},
					{Name: "Protein", Amount: 12, Unit: "g"},
					{Name: "Vitamin A", Amount: 500, Unit: "IU"},
				}},
			},
			detail: true,
			wantOK: true,
			check: func(t *testing.T, item domain.RecipeItem) {
				assert.Equal(t, "Fluffy pancakes. Serve warm.", item.Summary)
				assert.Equal(t, "Mix. Fry.", item.Instructions)
				assert.Equal(t, []string{"2 eggs", "1 cup flour"}, item.Ingredients)
				assert.Equal(t, map[domain.NutrientCode]float64{
					domain.NutrientCalories: 350,
					domain.NutrientProtein:  12,
				}, item.Nutrients)
			},
		},
		{name: "missing id", recipe: &Recipe{Title: "x"}, wantOK: false},
		{name: "missing title", recipe: &Recipe{ID: 9}, wantOK: false},
		{name: "nil", recipe: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, ok := MapRecipe(tt.recipe, tt.detail)
			require.Equal(t, tt.wantOK, ok)
			if tt.check != nil {
				tt.check(t, item)
			}
		})
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"The <b>best</b> <a href=\"x\">soup</a>", "The best soup"},
		{"<p>One</p><p>Two</p>", "One Two"},
		{"<ul><li>a</li><li>b</li></ul>", "a b"},
		{"line<br/>break", "line break"},
		{"<script>alert(1)</script>safe", "safe"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTMLToText(tt.in), tt.in)
	}
}
