package spoonacular

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nutriplan/backend/internal/domain"
	"github.com/nutriplan/backend/internal/infrastructure/upstream"
)

const (
	// DefaultBaseURL is the public Spoonacular API
	DefaultBaseURL = "https://api.spoonacular.com"

	// MaxNumber is the largest result count complexSearch accepts
	MaxNumber = 100
)

// Client handles communication with the Spoonacular API
type Client struct {
	http   *upstream.Client
	apiKey string
	logger *zap.Logger
}

// NewClient creates a Spoonacular client. Spoonacular answers 402 once the
// daily point quota is spent, so 402 is treated like 429.
func NewClient(apiKey, baseURL string, ratePerSecond float64, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http: upstream.NewClient(upstream.Config{
			Source:            domain.SourceSpoonacular,
			BaseURL:           baseURL,
			Timeout:           15 * time.Second,
			RatePerSecond:     ratePerSecond,
			Burst:             1,
			RateLimitStatuses: []int{http.StatusPaymentRequired},
		}, logger),
		apiKey: apiKey,
		logger: logger.With(zap.String("source", string(domain.SourceSpoonacular))),
	}
}

// SearchRecipes runs complexSearch with recipe information attached
func (c *Client) SearchRecipes(ctx context.Context, p SearchParams) (*SearchResponse, error) {
	number := p.Number
	if number <= 0 {
		number = 10
	}
	if number > MaxNumber {
		number = MaxNumber
	}

	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("query", p.Query)
	params.Set("number", strconv.Itoa(number))
	params.Set("addRecipeInformation", "true")
	if p.Offset > 0 {
		params.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Diet != "" {
		params.Set("diet", p.Diet)
	}
	if p.Intolerances != "" {
		params.Set("intolerances", p.Intolerances)
	}

	c.logger.Debug("searching recipes", zap.String("query", p.Query), zap.Int("number", number))

	var resp SearchResponse
	if err := c.http.GetJSON(ctx, "/recipes/complexSearch", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRecipeInformation fetches one recipe with nutrition
func (c *Client) GetRecipeInformation(ctx context.Context, id string) (*Recipe, error) {
	if _, err := strconv.Atoi(id); err != nil {
		return nil, fmt.Errorf("%w: recipe id must be numeric, got %q", domain.ErrInvalidQuery, id)
	}

	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("includeNutrition", "true")

	var recipe Recipe
	if err := c.http.GetJSON(ctx, "/recipes/"+url.PathEscape(id)+"/information", params, &recipe); err != nil {
		return nil, err
	}
	return &recipe, nil
}
