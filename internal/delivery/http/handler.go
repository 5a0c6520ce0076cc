package http

import (
	"context"
	"errors"
	"iter"
	"math"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nutriplan/backend/internal/domain"
)

// Aggregator is the query contract the handlers serve
type Aggregator interface {
	SearchFoods(ctx context.Context, text, database string, filters domain.FoodFilters, page, pageSize int) (domain.AggregatedPage, error)
	SearchByBarcode(ctx context.Context, code string) (*domain.FoodItem, bool, error)
	GetSuggestions(ctx context.Context, text, database string, limit int) (iter.Seq[string], error)
	SearchRecipes(ctx context.Context, text string, count int, diet, intolerances string) (domain.AggregatedPage, error)
	GetRecipeDetails(ctx context.Context, id string) (*domain.RecipeItem, error)
	GetFoodDetails(ctx context.Context, source, id string) (*domain.FoodItem, error)
	AnalyzeNutrition(ctx context.Context, ingredients []string) (map[domain.NutrientCode]float64, error)
	GetDatabaseStats(ctx context.Context) (domain.DatabaseStats, error)
	GetStatus() domain.ServiceStatus
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	aggregator Aggregator
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler. With a nil aggregator every API
// endpoint answers 503.
func NewHandler(aggregator Aggregator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		aggregator: aggregator,
		logger:     logger,
	}
}

// AnalyzeRequest is the body of POST /api/v1/nutrition/analyze
type AnalyzeRequest struct {
	Ingredients []string `json:"ingredients" binding:"required,min=1"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "nutriplan-backend",
		"version": "1.0.0",
	})
}

// SearchFoods handles GET /api/v1/foods/search.
// Optional filters: data_type (comma separated FDC data types) and category
// (code or description; category_id is accepted as an alias).
func (h *Handler) SearchFoods(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	page, ok := h.intParam(c, "page")
	if !ok {
		return
	}
	pageSize, ok := h.intParam(c, "page_size")
	if !ok {
		return
	}

	filters := domain.FoodFilters{
		DataType: c.Query("data_type"),
		Category: c.DefaultQuery("category", c.Query("category_id")),
	}

	result, err := h.aggregator.SearchFoods(c.Request.Context(), c.Query("q"), c.Query("database"), filters, page, pageSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SearchByBarcode handles GET /api/v1/foods/barcode/:code
func (h *Handler) SearchByBarcode(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	code := c.Param("code")

	item, found, err := h.aggregator.SearchByBarcode(c.Request.Context(), code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"found": false, "barcode": code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"found": true, "item": item})
}

// GetSuggestions handles GET /api/v1/foods/suggestions
func (h *Handler) GetSuggestions(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	limit, ok := h.intParam(c, "limit")
	if !ok {
		return
	}

	seq, err := h.aggregator.GetSuggestions(c.Request.Context(), c.Query("q"), c.Query("database"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	suggestions := slices.Collect(seq)
	if suggestions == nil {
		suggestions = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// GetDatabaseStats handles GET /api/v1/foods/stats
func (h *Handler) GetDatabaseStats(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	stats, err := h.aggregator.GetDatabaseStats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetFoodDetails handles GET /api/v1/foods/:source/:id
func (h *Handler) GetFoodDetails(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	item, err := h.aggregator.GetFoodDetails(c.Request.Context(), c.Param("source"), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// SearchRecipes handles GET /api/v1/recipes/search
func (h *Handler) SearchRecipes(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	count, ok := h.intParam(c, "number")
	if !ok {
		return
	}

	result, err := h.aggregator.SearchRecipes(c.Request.Context(), c.Query("q"), count, c.Query("diet"), c.Query("intolerances"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetRecipeDetails handles GET /api/v1/recipes/:id
func (h *Handler) GetRecipeDetails(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	recipe, err := h.aggregator.GetRecipeDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipe)
}

// AnalyzeNutrition handles POST /api/v1/nutrition/analyze
func (h *Handler) AnalyzeNutrition(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	totals, err := h.aggregator.AnalyzeNutrition(c.Request.Context(), req.Ingredients)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nutrients": totals})
}

// GetStatus handles GET /api/v1/status
func (h *Handler) GetStatus(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	c.JSON(http.StatusOK, h.aggregator.GetStatus())
}

// ready answers 503 when no aggregator is wired
func (h *Handler) ready(c *gin.Context) bool {
	if h.aggregator == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "aggregation service is not configured",
		})
		return false
	}
	return true
}

// intParam reads an optional integer query parameter; absent means 0
func (h *Handler) intParam(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: name + " must be an integer",
		})
		return 0, false
	}
	return v, true
}

// respondError maps domain errors onto HTTP statuses
func (h *Handler) respondError(c *gin.Context, err error) {
	var rle *domain.RateLimitError
	switch {
	case errors.As(err, &rle):
		if rle.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rle.RetryAfter.Seconds()))))
		}
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate_limited", Message: err.Error()})
	case errors.Is(err, domain.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate_limited", Message: err.Error()})
	case errors.Is(err, domain.ErrUnknownScope),
		errors.Is(err, domain.ErrInvalidPageRequest),
		errors.Is(err, domain.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, domain.ErrProviderNotConfigured):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "not_configured", Message: err.Error()})
	case errors.Is(err, domain.ErrProviderFailure):
		h.logger.Warn("provider failure", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "provider_failure", Message: err.Error()})
	default:
		h.logger.Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"})
	}
}
