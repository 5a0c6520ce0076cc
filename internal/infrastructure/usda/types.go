package usda

// Food represents a food item from the USDA FoodData Central API.
// Search results carry flat nutrients; detail lookups nest them.
type Food struct {
	FdcID        int        `json:"fdcId"`
	Description  string     `json:"description"`
	DataType     string     `json:"dataType"`
	BrandOwner   string     `json:"brandOwner,omitempty"`
	BrandName    string     `json:"brandName,omitempty"`
	FoodCategory string     `json:"foodCategory,omitempty"`
	GtinUpc      string     `json:"gtinUpc,omitempty"`
	Ingredients  string     `json:"ingredients,omitempty"`
	ServingSize  float64    `json:"servingSize,omitempty"`
	ServingUnit  string     `json:"servingSizeUnit,omitempty"`
	Score        *float64   `json:"score,omitempty"`
	Nutrients    []Nutrient `json:"foodNutrients"`

	// Detail lookups return the category as an object
	FoodCategoryDetail *struct {
		Description string `json:"description"`
	} `json:"foodCategoryObject,omitempty"`

	// Only detail lookups of Foundation, SR Legacy and Survey foods carry portions
	FoodPortions []FoodPortion `json:"foodPortions,omitempty"`
}

// FoodPortion is a household measure from a food detail lookup
type FoodPortion struct {
	ID                 int          `json:"id"`
	SequenceNumber     int          `json:"sequenceNumber"`
	Amount             float64      `json:"amount"`
	GramWeight         float64      `json:"gramWeight"`
	PortionDescription string       `json:"portionDescription,omitempty"`
	Modifier           string       `json:"modifier,omitempty"`
	MeasureUnit        *MeasureUnit `json:"measureUnit,omitempty"`
}

// MeasureUnit names the unit of a portion. Portions described only by their
// modifier use "undetermined".
type MeasureUnit struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// Nutrient represents a single nutrient from USDA data
type Nutrient struct {
	NutrientID     int     `json:"nutrientId"`
	NutrientName   string  `json:"nutrientName,omitempty"`
	NutrientNumber string  `json:"nutrientNumber,omitempty"`
	UnitName       string  `json:"unitName,omitempty"`
	Value          float64 `json:"value"`

	// Detail shape: {"nutrient": {"id": 1003, ...}, "amount": 31.0}
	Nutrient *struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		UnitName string `json:"unitName"`
	} `json:"nutrient,omitempty"`
	Amount *float64 `json:"amount,omitempty"`
}

// SearchResponse represents the response from USDA search API
type SearchResponse struct {
	Foods       []Food `json:"foods"`
	TotalHits   int    `json:"totalHits"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
}

// SearchParams narrows a foods search
type SearchParams struct {
	Query      string
	PageSize   int
	PageNumber int
	DataTypes  string
}
