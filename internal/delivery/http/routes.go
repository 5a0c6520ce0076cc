package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nutriplan/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware(logger))
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	if cfg.RateLimit.PerIP > 0 {
		v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP, cfg.RateLimit.PerIPBurst))
	}
	{
		foods := v1.Group("/foods")
		{
			foods.GET("/search", handler.SearchFoods)
			foods.GET("/suggestions", handler.GetSuggestions)
			foods.GET("/stats", handler.GetDatabaseStats)
			foods.GET("/barcode/:code", handler.SearchByBarcode)
			foods.GET("/:source/:id", handler.GetFoodDetails)
		}

		recipes := v1.Group("/recipes")
		{
			recipes.GET("/search", handler.SearchRecipes)
			recipes.GET("/:id", handler.GetRecipeDetails)
		}

		nutrition := v1.Group("/nutrition")
		{
			nutrition.POST("/analyze", handler.AnalyzeNutrition)
		}

		v1.GET("/status", handler.GetStatus)
	}

	return router
}
