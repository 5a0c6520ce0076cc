package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Source identifies an external data provider
type Source string

const (
	SourceUSDA           Source = "usda"
	SourceChildNutrition Source = "childNutrition"
	SourceOpenFoodFacts  Source = "openFoodFacts"
	SourceSpoonacular    Source = "spoonacular"
)

// sourceOrder fixes the merge tie-break order between sources.
var sourceOrder = map[Source]int{
	SourceUSDA:           0,
	SourceChildNutrition: 1,
	SourceOpenFoodFacts:  2,
	SourceSpoonacular:    3,
}

// SourceRank returns the position of a source in the canonical source order.
// Unknown sources sort after every known one.
func SourceRank(s Source) int {
	if r, ok := sourceOrder[s]; ok {
		return r
	}
	return len(sourceOrder)
}

// Scope is the database selector a caller passes with a query
type Scope string

const (
	ScopeAll            Scope = "all"
	ScopeUSDA           Scope = "usda"
	ScopeChildNutrition Scope = "childNutrition"
	ScopeRecipes        Scope = "recipes"
	ScopeBarcode        Scope = "barcode"
)

// ParseScope validates a scope string. An empty string means ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "":
		return ScopeAll, nil
	case ScopeAll, ScopeUSDA, ScopeChildNutrition, ScopeRecipes, ScopeBarcode:
		return Scope(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScope, s)
}

// QueryKind selects the capability group a query is routed to
type QueryKind string

const (
	KindFood    QueryKind = "food"
	KindRecipe  QueryKind = "recipe"
	KindBarcode QueryKind = "barcode"
)

// Capability is what an adapter can answer. Capability groups are disjoint
// per query kind.
type Capability string

const (
	CapabilityFoodSearch    Capability = "foodSearch"
	CapabilityRecipeSearch  Capability = "recipeSearch"
	CapabilityBarcodeLookup Capability = "barcodeLookup"
)

// CapabilityFor returns the capability a query kind requires.
func CapabilityFor(kind QueryKind) Capability {
	switch kind {
	case KindRecipe:
		return CapabilityRecipeSearch
	case KindBarcode:
		return CapabilityBarcodeLookup
	default:
		return CapabilityFoodSearch
	}
}

// Food search filter names
const (
	FilterDataType = "dataType"
	FilterCategory = "category"
)

// FoodFilters narrows a food search. Empty fields do not filter.
type FoodFilters struct {
	// DataType is a comma separated list of FoodData Central data types
	DataType string
	// Category is a category code or a category description
	Category string
}

// Map returns the filters keyed by filter name.
func (f FoodFilters) Map() map[string]string {
	return map[string]string{
		FilterDataType: f.DataType,
		FilterCategory: f.Category,
	}
}

// NormalizedQuery is the canonical, validated form of a caller's request.
// Fields are unexported so a constructed query cannot be mutated.
type NormalizedQuery struct {
	kind      QueryKind
	text      string
	matchText string
	scope     Scope
	page      int
	pageSize  int
	filters   map[string]string
}

// NewNormalizedQuery validates and canonicalizes a query.
func NewNormalizedQuery(kind QueryKind, text string, scope Scope, page, pageSize int, filters map[string]string, maxPageSize int) (NormalizedQuery, error) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return NormalizedQuery{}, fmt.Errorf("%w: query text is required", ErrInvalidQuery)
	}
	if scope == "" {
		scope = ScopeAll
	}
	if _, err := ParseScope(string(scope)); err != nil {
		return NormalizedQuery{}, err
	}
	if err := ValidatePage(page, pageSize, maxPageSize); err != nil {
		return NormalizedQuery{}, err
	}

	copied := make(map[string]string, len(filters))
	for k, v := range filters {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		copied[k] = v
	}

	return NormalizedQuery{
		kind:      kind,
		text:      text,
		matchText: strings.ToLower(text),
		scope:     scope,
		page:      page,
		pageSize:  pageSize,
		filters:   copied,
	}, nil
}

// WithMatchText returns a copy of q whose exact-match text is the caller's
// own wording rather than the cleaned search text. Blank raw text is ignored.
func (q NormalizedQuery) WithMatchText(raw string) NormalizedQuery {
	if raw = strings.Join(strings.Fields(raw), " "); raw != "" {
		q.matchText = strings.ToLower(raw)
	}
	return q
}

// ValidatePage checks page >= 1 and 1 <= pageSize <= maxPageSize.
func ValidatePage(page, pageSize, maxPageSize int) error {
	if page < 1 {
		return fmt.Errorf("%w: page must be >= 1, got %d", ErrInvalidPageRequest, page)
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return fmt.Errorf("%w: page size must be between 1 and %d, got %d", ErrInvalidPageRequest, maxPageSize, pageSize)
	}
	return nil
}

func (q NormalizedQuery) Kind() QueryKind { return q.kind }
func (q NormalizedQuery) Text() string    { return q.text }
func (q NormalizedQuery) Scope() Scope    { return q.scope }
func (q NormalizedQuery) Page() int       { return q.page }
func (q NormalizedQuery) PageSize() int   { return q.pageSize }

// MatchText is the lower-cased text item labels are compared against when
// ranking exact matches first.
func (q NormalizedQuery) MatchText() string { return q.matchText }

// Filter returns a single filter value, or "" when unset.
func (q NormalizedQuery) Filter(name string) string {
	return q.filters[name]
}

// Filters returns a copy of the query filters.
func (q NormalizedQuery) Filters() map[string]string {
	out := make(map[string]string, len(q.filters))
	for k, v := range q.filters {
		out[k] = v
	}
	return out
}

// FetchDepth is how many leading items each adapter must return so the
// requested page can be cut from the merged sequence.
func (q NormalizedQuery) FetchDepth() int {
	return q.page * q.pageSize
}

// Offset is the index of the first item of the requested page.
func (q NormalizedQuery) Offset() int {
	return (q.page - 1) * q.pageSize
}

// CacheKey identifies the whole query.
// Format: "query:{sha256(kind|scope|text|match|page|pageSize|filters)}"
func (q NormalizedQuery) CacheKey() string {
	canonical := fmt.Sprintf("%s|%s|%s|%s|%d|%d|%s",
		q.kind, q.scope, strings.ToLower(q.text), q.matchText, q.page, q.pageSize, q.canonicalFilters())
	return "query:" + hashHex(canonical)
}

// AdapterKey identifies one adapter's slice of the query. Page and scope are
// left out: the adapter answer depends only on what it is asked to fetch.
// Format: "provider:{source}:{sha256(kind|text|filters|depth)}"
func (q NormalizedQuery) AdapterKey(source Source) string {
	canonical := fmt.Sprintf("%s|%s|%s|%d",
		q.kind, strings.ToLower(q.text), q.canonicalFilters(), q.FetchDepth())
	return fmt.Sprintf("provider:%s:%s", source, hashHex(canonical))
}

func (q NormalizedQuery) canonicalFilters() string {
	keys := make([]string, 0, len(q.filters))
	for k := range q.filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, strings.ToLower(k)+"="+strings.ToLower(q.filters[k]))
	}
	return strings.Join(parts, "&")
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
