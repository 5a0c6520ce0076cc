package spoonacular

// Recipe is a recipe as returned by complexSearch (with
// addRecipeInformation) and by the information endpoint
type Recipe struct {
	ID               int      `json:"id"`
	Title            string   `json:"title"`
	Image            string   `json:"image,omitempty"`
	ReadyInMinutes   int      `json:"readyInMinutes"`
	Servings         int      `json:"servings"`
	Vegetarian       bool     `json:"vegetarian"`
	Vegan            bool     `json:"vegan"`
	GlutenFree       bool     `json:"glutenFree"`
	DairyFree        bool     `json:"dairyFree"`
	SpoonacularScore *float64 `json:"spoonacularScore,omitempty"`
	SourceURL        string   `json:"sourceUrl,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	Instructions     string   `json:"instructions,omitempty"`

	ExtendedIngredients []Ingredient `json:"extendedIngredients,omitempty"`
	Nutrition           *Nutrition   `json:"nutrition,omitempty"`
}

// Ingredient is one line of a recipe's ingredient list
type Ingredient struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Original string  `json:"original"`
	Amount   float64 `json:"amount"`
	Unit     string  `json:"unit"`
}

// Nutrition is included when includeNutrition=true
type Nutrition struct {
	Nutrients []Nutrient `json:"nutrients"`
}

// Nutrient is a per-serving nutrient amount
type Nutrient struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}

// SearchResponse is the complexSearch envelope
type SearchResponse struct {
	Results      []Recipe `json:"results"`
	Offset       int      `json:"offset"`
	Number       int      `json:"number"`
	TotalResults int      `json:"totalResults"`
}

// SearchParams narrows a recipe search
type SearchParams struct {
	Query        string
	Number       int
	Offset       int
	Diet         string
	Intolerances string
}
