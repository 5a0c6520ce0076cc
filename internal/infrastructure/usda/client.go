package usda

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nutriplan/backend/internal/domain"
	"github.com/nutriplan/backend/internal/infrastructure/upstream"
)

const (
	// DefaultDataTypes focuses searches on the data types with usable nutrients
	DefaultDataTypes = "Foundation,SR Legacy,Survey (FNDDS),Branded"

	// MaxPageSize is the largest page FoodData Central serves
	MaxPageSize = 200
)

// Client handles communication with the USDA FoodData Central API
type Client struct {
	http   *upstream.Client
	apiKey string
	logger *zap.Logger
}

// NewClient creates a new USDA API client.
// USDA allows 1000 requests per hour per key; ratePerHour configures the
// proactive limiter (0 disables it).
func NewClient(apiKey, baseURL string, ratePerHour int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http: upstream.NewClient(upstream.Config{
			Source:        domain.SourceUSDA,
			BaseURL:       baseURL,
			Timeout:       30 * time.Second,
			RatePerSecond: float64(ratePerHour) / 3600,
			Burst:         10,
		}, logger),
		apiKey: apiKey,
		logger: logger.With(zap.String("source", string(domain.SourceUSDA))),
	}
}

// SearchFoods searches for foods in the USDA database. Zero hits is a
// successful, empty response.
func (c *Client) SearchFoods(ctx context.Context, p SearchParams) (*SearchResponse, error) {
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	pageNumber := p.PageNumber
	if pageNumber <= 0 {
		pageNumber = 1
	}
	dataTypes := p.DataTypes
	if dataTypes == "" {
		dataTypes = DefaultDataTypes
	}

	params := url.Values{}
	params.Add("query", p.Query)
	params.Add("api_key", c.apiKey)
	params.Add("dataType", dataTypes)
	params.Add("pageSize", strconv.Itoa(pageSize))
	params.Add("pageNumber", strconv.Itoa(pageNumber))

	c.logger.Debug("searching foods", zap.String("query", p.Query), zap.Int("page_size", pageSize))

	var resp SearchResponse
	if err := c.http.GetJSON(ctx, "/v1/foods/search", params, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("search complete", zap.String("query", p.Query), zap.Int("foods", len(resp.Foods)), zap.Int("total_hits", resp.TotalHits))
	return &resp, nil
}

// GetFoodDetails retrieves detailed nutrition information for a specific food by FDC ID
func (c *Client) GetFoodDetails(ctx context.Context, fdcID string) (*Food, error) {
	if _, err := strconv.Atoi(fdcID); err != nil {
		return nil, fmt.Errorf("%w: fdc id must be numeric, got %q", domain.ErrInvalidQuery, fdcID)
	}

	params := url.Values{}
	params.Add("api_key", c.apiKey)

	var food Food
	if err := c.http.GetJSON(ctx, "/v1/food/"+url.PathEscape(fdcID), params, &food); err != nil {
		return nil, err
	}
	return &food, nil
}
