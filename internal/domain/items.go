package domain

// NutrientCode is the shared nutrient vocabulary every provider is mapped onto
type NutrientCode string

const (
	NutrientCalories NutrientCode = "calories" // kcal
	NutrientProtein  NutrientCode = "protein"  // g
	NutrientFat      NutrientCode = "fat"      // g
	NutrientCarbs    NutrientCode = "carbs"    // g
	NutrientFiber    NutrientCode = "fiber"    // g
	NutrientSugars   NutrientCode = "sugars"   // g
	NutrientSodium   NutrientCode = "sodium"   // mg
	NutrientCalcium  NutrientCode = "calcium"  // mg
	NutrientIron     NutrientCode = "iron"     // mg
	NutrientVitaminC NutrientCode = "vitaminC" // mg
	NutrientVitaminA NutrientCode = "vitaminA" // µg RAE
)

// Item is a single entry of a merged result set: a FoodItem or a RecipeItem.
type Item interface {
	ItemSource() Source
	ItemID() string
	// Label is the text matched against the query (description or title).
	Label() string
	// Rank is the source-reported relevance score, if any.
	Rank() (float64, bool)
}

// FoodItem is a food from any food or product provider
type FoodItem struct {
	ID          string                   `json:"id"`
	Source      Source                   `json:"source"`
	Description string                   `json:"description"`
	Brand       string                   `json:"brand,omitempty"`
	Category    string                   `json:"category,omitempty"`
	DataType    string                   `json:"dataType,omitempty"`
	Barcode     string                   `json:"barcode,omitempty"`
	ServingSize string                   `json:"servingSize,omitempty"`
	Ingredients string                   `json:"ingredients,omitempty"`
	Score       *float64                 `json:"score,omitempty"`
	Nutrients   map[NutrientCode]float64 `json:"nutrients"`
	// Portions are household measures; only detail lookups fill them in
	Portions []Portion `json:"portions,omitempty"`
}

// Portion is a household measure of a food and its weight
type Portion struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount,omitempty"`
	Modifier    string  `json:"modifier,omitempty"`
	GramWeight  float64 `json:"gramWeight"`
}

func (f FoodItem) ItemSource() Source { return f.Source }
func (f FoodItem) ItemID() string     { return f.ID }
func (f FoodItem) Label() string      { return f.Description }

func (f FoodItem) Rank() (float64, bool) {
	if f.Score == nil {
		return 0, false
	}
	return *f.Score, true
}

// DietFlag is one of the diet properties a recipe may carry
type DietFlag string

const (
	DietVegetarian DietFlag = "vegetarian"
	DietVegan      DietFlag = "vegan"
	DietGlutenFree DietFlag = "glutenFree"
	DietDairyFree  DietFlag = "dairyFree"
)

// RecipeItem is a recipe from the recipe aggregator. Summary, Ingredients,
// Instructions and Nutrients are only filled in by detail lookups.
type RecipeItem struct {
	ID             string                   `json:"id"`
	Source         Source                   `json:"source"`
	Title          string                   `json:"title"`
	Image          string                   `json:"image,omitempty"`
	ReadyInMinutes int                      `json:"readyInMinutes"`
	Servings       int                      `json:"servings"`
	DietFlags      []DietFlag               `json:"dietFlags"`
	Score          *float64                 `json:"score,omitempty"`
	SourceURL      string                   `json:"sourceUrl,omitempty"`
	Summary        string                   `json:"summary,omitempty"`
	Ingredients    []string                 `json:"ingredients,omitempty"`
	Instructions   string                   `json:"instructions,omitempty"`
	Nutrients      map[NutrientCode]float64 `json:"nutrients,omitempty"`
}

func (r RecipeItem) ItemSource() Source { return r.Source }
func (r RecipeItem) ItemID() string     { return r.ID }
func (r RecipeItem) Label() string      { return r.Title }

func (r RecipeItem) Rank() (float64, bool) {
	if r.Score == nil {
		return 0, false
	}
	return *r.Score, true
}

// HasDiet reports whether the recipe carries the given diet flag.
func (r RecipeItem) HasDiet(flag DietFlag) bool {
	for _, f := range r.DietFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Float64Ptr returns a pointer to v. Used for optional scores.
func Float64Ptr(v float64) *float64 {
	return &v
}
