// Package openfoodfacts resolves product barcodes against Open Food Facts.
package openfoodfacts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/nutriplan/backend/internal/domain"
	"github.com/nutriplan/backend/internal/infrastructure/upstream"
)

const (
	// DefaultBaseURL is the public Open Food Facts API
	DefaultBaseURL = "https://world.openfoodfacts.org"

	// productFields limits the payload to what the mapper reads
	productFields = "code,product_name,generic_name,brands,categories,ingredients_text,serving_size,nutriments"
)

// ProductResponse is the /api/v2/product envelope. Status 0 means the
// barcode is unknown.
type ProductResponse struct {
	Code          string   `json:"code"`
	Status        int      `json:"status"`
	StatusVerbose string   `json:"status_verbose"`
	Product       *Product `json:"product"`
}

// Product is the subset of product fields we use
type Product struct {
	Code            string `json:"code"`
	ProductName     string `json:"product_name"`
	GenericName     string `json:"generic_name"`
	Brands          string `json:"brands"`
	Categories      string `json:"categories"`
	IngredientsText string `json:"ingredients_text"`
	ServingSize     string `json:"serving_size"`
	// Nutriments values are usually numbers but occasionally strings
	Nutriments map[string]interface{} `json:"nutriments"`
}

// Client handles communication with Open Food Facts
type Client struct {
	http   *upstream.Client
	logger *zap.Logger
}

// NewClient creates an Open Food Facts client. The service asks API users
// to identify themselves with a descriptive User-Agent.
func NewClient(baseURL, userAgent string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http: upstream.NewClient(upstream.Config{
			Source:    domain.SourceOpenFoodFacts,
			BaseURL:   baseURL,
			UserAgent: userAgent,
			Timeout:   10 * time.Second,
			// 100 product reads per minute
			RatePerSecond: 100.0 / 60,
			Burst:         5,
		}, logger),
		logger: logger.With(zap.String("source", string(domain.SourceOpenFoodFacts))),
	}
}

// GetProduct looks a barcode up. Unknown barcodes yield domain.ErrNotFound.
func (c *Client) GetProduct(ctx context.Context, code string) (*Product, error) {
	if !IsBarcode(code) {
		return nil, fmt.Errorf("%w: barcode must be 8 to 14 digits, got %q", domain.ErrInvalidQuery, code)
	}

	params := url.Values{}
	params.Set("fields", productFields)

	var resp ProductResponse
	err := c.http.GetJSON(ctx, "/api/v2/product/"+code+".json", params, &resp)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if resp.Status == 0 || resp.Product == nil {
		c.logger.Debug("product not found", zap.String("code", code), zap.String("status", resp.StatusVerbose))
		return nil, domain.ErrNotFound
	}
	if resp.Product.Code == "" {
		resp.Product.Code = resp.Code
	}
	return resp.Product, nil
}

// IsBarcode reports whether code looks like an EAN-8/UPC/EAN-13/GTIN-14
func IsBarcode(code string) bool {
	if len(code) < 8 || len(code) > 14 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
