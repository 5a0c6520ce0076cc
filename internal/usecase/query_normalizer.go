package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nutriplan/backend/internal/domain"
)

// Compiled patterns for query cleaning
var (
	// Characters upstream search endpoints reject or misinterpret
	specialCharsPattern = regexp.MustCompile(`[#%+@!^*()=\[\]{}<>|\\~` + "`" + `"]`)

	// Separators allowed inside printed barcodes
	barcodeSeparatorPattern = regexp.MustCompile(`[\s\-]`)

	barcodePattern = regexp.MustCompile(`^\d{8,14}$`)
)

// maxQueryLength keeps search text within what upstream APIs accept
const maxQueryLength = 100

// DefaultRecipeCount is the number of recipes returned when no count is given
const DefaultRecipeCount = 12

// NormalizerConfig holds paging defaults for the query normalizer
type NormalizerConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// QueryNormalizer turns raw caller parameters into validated queries
type QueryNormalizer struct {
	defaultPageSize int
	maxPageSize     int
}

// NewQueryNormalizer creates a normalizer. Zero values fall back to 20 and 100.
func NewQueryNormalizer(config NormalizerConfig) *QueryNormalizer {
	maxPageSize := config.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	defaultPageSize := config.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = 20
	}
	if defaultPageSize > maxPageSize {
		defaultPageSize = maxPageSize
	}
	return &QueryNormalizer{
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

// MaxPageSize returns the largest page size queries may ask for
func (n *QueryNormalizer) MaxPageSize() int {
	return n.maxPageSize
}

// FoodQuery builds a food text search. A zero page or page size means the
// default; negative values are rejected. Exact matches are judged against
// the caller's text, not the cleaned search text.
func (n *QueryNormalizer) FoodQuery(text, database string, filters domain.FoodFilters, page, pageSize int) (domain.NormalizedQuery, error) {
	scope, err := foodScope(database)
	if err != nil {
		return domain.NormalizedQuery{}, err
	}
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = n.defaultPageSize
	}
	filters.DataType = normalizeDataTypes(filters.DataType)
	filters.Category = strings.Join(strings.Fields(filters.Category), " ")

	q, err := domain.NewNormalizedQuery(domain.KindFood, CleanQueryText(text), scope, page, pageSize, filters.Map(), n.maxPageSize)
	if err != nil {
		return domain.NormalizedQuery{}, err
	}
	return q.WithMatchText(text), nil
}

// RecipeQuery builds a recipe search returning the first count recipes
func (n *QueryNormalizer) RecipeQuery(text string, count int, diet, intolerances string) (domain.NormalizedQuery, error) {
	if count == 0 {
		count = DefaultRecipeCount
	}
	filters := map[string]string{
		"diet":         strings.ToLower(diet),
		"intolerances": normalizeList(intolerances),
	}
	return domain.NewNormalizedQuery(domain.KindRecipe, CleanQueryText(text), domain.ScopeAll, 1, count, filters, n.maxPageSize)
}

// BarcodeQuery builds a barcode lookup. Spaces and hyphens are ignored;
// what remains must be 8 to 14 digits.
func (n *QueryNormalizer) BarcodeQuery(code string) (domain.NormalizedQuery, error) {
	cleaned := NormalizeBarcode(code)
	if !barcodePattern.MatchString(cleaned) {
		return domain.NormalizedQuery{}, fmt.Errorf("%w: barcode must be 8 to 14 digits, got %q", domain.ErrInvalidQuery, code)
	}
	return domain.NewNormalizedQuery(domain.KindBarcode, cleaned, domain.ScopeBarcode, 1, 1, nil, n.maxPageSize)
}

// SuggestionQuery builds the food search behind autocomplete. It asks for
// twice limit items, up to the maximum page size, so labels that differ
// only in case still leave limit distinct ones.
func (n *QueryNormalizer) SuggestionQuery(text, database string, limit int) (domain.NormalizedQuery, error) {
	if limit <= 0 {
		return domain.NormalizedQuery{}, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidQuery)
	}
	return n.FoodQuery(text, database, domain.FoodFilters{}, 1, min(2*limit, n.maxPageSize))
}

// foodScope accepts the scopes a food search may name
func foodScope(database string) (domain.Scope, error) {
	scope, err := domain.ParseScope(database)
	if err != nil {
		return "", err
	}
	switch scope {
	case domain.ScopeAll, domain.ScopeUSDA, domain.ScopeChildNutrition:
		return scope, nil
	}
	return "", fmt.Errorf("%w: %q is not a food database", domain.ErrUnknownScope, database)
}

// CleanQueryText strips characters upstream search endpoints choke on,
// collapses whitespace and caps the length at a word boundary.
func CleanQueryText(text string) string {
	cleaned := strings.ReplaceAll(text, "&", " and ")
	cleaned = specialCharsPattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if len(cleaned) > maxQueryLength {
		cleaned = cleaned[:maxQueryLength]
		// Try to cut at word boundary
		if lastSpace := strings.LastIndex(cleaned, " "); lastSpace > maxQueryLength/2 {
			cleaned = cleaned[:lastSpace]
		}
		cleaned = strings.TrimSpace(strings.ToValidUTF8(cleaned, ""))
	}
	return cleaned
}

// NormalizeBarcode drops the separators printed barcodes are often written with
func NormalizeBarcode(code string) string {
	return barcodeSeparatorPattern.ReplaceAllString(code, "")
}

// normalizeDataTypes trims a comma separated data type list. FoodData
// Central matches data types case-sensitively, so case is kept.
func normalizeDataTypes(s string) string {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ",")
}

// normalizeList lower-cases a comma separated list and drops empty entries
func normalizeList(s string) string {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ",")
}
