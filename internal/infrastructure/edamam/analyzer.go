// Package edamam analyzes free-text ingredient lists with the Edamam
// Nutrition Analysis API.
package edamam

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nutriplan/backend/internal/domain"
	"github.com/nutriplan/backend/internal/infrastructure/upstream"
)

// DefaultBaseURL is the public Edamam API
const DefaultBaseURL = "https://api.edamam.com"

// maxIngredients bounds one analysis request
const maxIngredients = 100

var nutrientCodes = map[string]domain.NutrientCode{
	"ENERC_KCAL": domain.NutrientCalories,
	"PROCNT":     domain.NutrientProtein,
	"FAT":        domain.NutrientFat,
	"CHOCDF":     domain.NutrientCarbs,
	"FIBTG":      domain.NutrientFiber,
	"SUGAR":      domain.NutrientSugars,
	"NA":         domain.NutrientSodium,
	"CA":         domain.NutrientCalcium,
	"FE":         domain.NutrientIron,
	"VITC":       domain.NutrientVitaminC,
	"VITA_RAE":   domain.NutrientVitaminA,
}

type analysisRequest struct {
	Title string   `json:"title,omitempty"`
	Ingr  []string `json:"ingr"`
}

// AnalysisResponse is the subset of the nutrition-details response we read
type AnalysisResponse struct {
	Calories       float64             `json:"calories"`
	TotalWeight    float64             `json:"totalWeight"`
	TotalNutrients map[string]Quantity `json:"totalNutrients"`
}

// Quantity is one nutrient total
type Quantity struct {
	Label    string  `json:"label"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// Analyzer implements domain.NutritionAnalyzer
type Analyzer struct {
	http   *upstream.Client
	appID  string
	appKey string
	logger *zap.Logger
}

var _ domain.NutritionAnalyzer = (*Analyzer)(nil)

// NewAnalyzer creates an Edamam analyzer
func NewAnalyzer(appID, appKey, baseURL string, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Analyzer{
		http: upstream.NewClient(upstream.Config{
			// Edamam is not a searchable source; its errors carry the
			// service name for logging only.
			Source:  domain.Source("edamam"),
			BaseURL: baseURL,
			Timeout: 20 * time.Second,
		}, logger),
		appID:  appID,
		appKey: appKey,
		logger: logger,
	}
}

// Analyze totals the nutrients of the given ingredient lines
func (a *Analyzer) Analyze(ctx context.Context, ingredients []string) (map[domain.NutrientCode]float64, error) {
	lines := CleanIngredients(ingredients)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one ingredient is required", domain.ErrInvalidQuery)
	}
	if len(lines) > maxIngredients {
		return nil, fmt.Errorf("%w: at most %d ingredients per analysis, got %d", domain.ErrInvalidQuery, maxIngredients, len(lines))
	}

	params := url.Values{}
	params.Set("app_id", a.appID)
	params.Set("app_key", a.appKey)

	var resp AnalysisResponse
	if err := a.http.PostJSON(ctx, "/api/nutrition-details", params, analysisRequest{Ingr: lines}, &resp); err != nil {
		return nil, err
	}

	totals := make(map[domain.NutrientCode]float64)
	for key, q := range resp.TotalNutrients {
		if code, ok := nutrientCodes[key]; ok {
			totals[code] = q.Quantity
		}
	}
	if _, ok := totals[domain.NutrientCalories]; !ok && resp.Calories > 0 {
		totals[domain.NutrientCalories] = resp.Calories
	}

	a.logger.Debug("nutrition analysis complete", zap.Int("ingredients", len(lines)), zap.Int("nutrients", len(totals)))
	return totals, nil
}

// CleanIngredients trims lines, drops blanks and collapses inner whitespace
func CleanIngredients(ingredients []string) []string {
	lines := make([]string, 0, len(ingredients))
	for _, line := range ingredients {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
