package spoonacular

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nutriplan/backend/internal/domain"
)

// nutrient names as Spoonacular reports them, with the unit the shared
// vocabulary expects. Amounts in any other unit are left out.
var nutrientNames = map[string]struct {
	code domain.NutrientCode
	unit string
}{
	"Calories":      {domain.NutrientCalories, "kcal"},
	"Protein":       {domain.NutrientProtein, "g"},
	"Fat":           {domain.NutrientFat, "g"},
	"Carbohydrates": {domain.NutrientCarbs, "g"},
	"Fiber":         {domain.NutrientFiber, "g"},
	"Sugar":         {domain.NutrientSugars, "g"},
	"Sodium":        {domain.NutrientSodium, "mg"},
	"Calcium":       {domain.NutrientCalcium, "mg"},
	"Iron":          {domain.NutrientIron, "mg"},
	"Vitamin C":     {domain.NutrientVitaminC, "mg"},
	"Vitamin A":     {domain.NutrientVitaminA, "µg"},
}

// MapRecipe converts a Spoonacular recipe to the shared schema. detail adds
// the summary, ingredients, instructions and nutrients. ok is false for
// recipes without an id or title.
func MapRecipe(r *Recipe, detail bool) (domain.RecipeItem, bool) {
	if r == nil || r.ID <= 0 || strings.TrimSpace(r.Title) == "" {
		return domain.RecipeItem{}, false
	}

	item := domain.RecipeItem{
		ID:             strconv.Itoa(r.ID),
		Source:         domain.SourceSpoonacular,
		Title:          strings.TrimSpace(r.Title),
		Image:          r.Image,
		ReadyInMinutes: r.ReadyInMinutes,
		Servings:       r.Servings,
		DietFlags:      dietFlags(r),
		SourceURL:      r.SourceURL,
	}
	if item.ReadyInMinutes < 0 {
		item.ReadyInMinutes = 0
	}
	if item.Servings < 1 {
		item.Servings = 1
	}
	if r.SpoonacularScore != nil {
		item.Score = domain.Float64Ptr(*r.SpoonacularScore)
	}

	if !detail {
		return item, true
	}

	item.Summary = HTMLToText(r.Summary)
	item.Instructions = HTMLToText(r.Instructions)
	for _, ing := range r.ExtendedIngredients {
		if line := strings.TrimSpace(ing.Original); line != "" {
			item.Ingredients = append(item.Ingredients, line)
		}
	}
	if r.Nutrition != nil {
		item.Nutrients = make(map[domain.NutrientCode]float64)
		for _, n := range r.Nutrition.Nutrients {
			if want, ok := nutrientNames[n.Name]; ok && strings.EqualFold(n.Unit, want.unit) {
				item.Nutrients[want.code] = n.Amount
			}
		}
	}
	return item, true
}

// MapSearchResults maps a results page, counting malformed recipes
func MapSearchResults(recipes []Recipe) ([]domain.Item, int) {
	items := make([]domain.Item, 0, len(recipes))
	dropped := 0
	for i := range recipes {
		item, ok := MapRecipe(&recipes[i], false)
		if !ok {
			dropped++
			continue
		}
		items = append(items, item)
	}
	return items, dropped
}

// dietFlags returns the flags in a fixed order
func dietFlags(r *Recipe) []domain.DietFlag {
	flags := []domain.DietFlag{}
	if r.Vegetarian {
		flags = append(flags, domain.DietVegetarian)
	}
	if r.Vegan {
		flags = append(flags, domain.DietVegan)
	}
	if r.GlutenFree {
		flags = append(flags, domain.DietGlutenFree)
	}
	if r.DairyFree {
		flags = append(flags, domain.DietDairyFree)
	}
	return flags
}

// blockElements are separated by whitespace when flattened
var blockElements = map[string]bool{
	"p": true, "li": true, "div": true, "br": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "ol": true, "ul": true,
}

// HTMLToText reduces Spoonacular's HTML fragments to plain text
func HTMLToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}

	var b strings.Builder
	collectText(doc.Find("body"), &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(s *goquery.Selection, b *strings.Builder) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		switch {
		case name == "#text":
			b.WriteString(c.Text())
		case name == "script" || name == "style":
		case blockElements[name]:
			b.WriteString(" ")
			collectText(c, b)
			b.WriteString(" ")
		default:
			collectText(c, b)
		}
	})
}
