package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/shoprewrite/backend/config"
	"github.com/shoprewrite/backend/internal/infrastructure/metrics"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, m *metrics.Metrics, logger zerolog.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	if m != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(BasicAuthMiddleware(cfg.Server.DashboardUser, cfg.Server.DashboardPassword))
	{
		collections := v1.Group("/collections")
		{
			collections.GET("", handler.ListCollections)
			collections.POST("/products", handler.ListCollectionProducts)
		}

		optimize := v1.Group("/optimize")
		{
			optimize.POST("", handler.Optimize)
			optimize.GET("/:jobId", handler.JobStatus)
			optimize.POST("/:jobId/cancel", handler.CancelOptimize)
		}

		v1.POST("/products/:id/preview", handler.PreviewProduct)
	}

	return router
}
