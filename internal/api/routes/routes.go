package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/Wikid82/sentinel/internal/api/handlers"
	"github.com/Wikid82/sentinel/internal/api/middleware"
	"github.com/Wikid82/sentinel/internal/config"
	"github.com/Wikid82/sentinel/internal/models"
	"github.com/Wikid82/sentinel/internal/services"
)

// Register wires up the routes of the public listener. Only the health check
// is answered directly; everything else belongs to the protected site.
func Register(router *gin.Engine) {
	router.GET("/api/v1/health", handlers.HealthHandler)
}

// RegisterAdmin wires up the health, metrics and Sentinel control-plane routes
// of the admin listener and performs automatic migrations of the audit tables.
func RegisterAdmin(router *gin.Engine, db *gorm.DB, cfg config.Config, svc *services.SentinelService, gatherer prometheus.Gatherer) error {
	if err := db.AutoMigrate(
		&models.SecurityAudit{},
		&models.SecurityDecision{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	router.GET("/api/v1/health", handlers.HealthHandler)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	api.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		IsDevelopment: !cfg.IsProduction(),
	}))
	handlers.NewSentinelHandler(svc).RegisterRoutes(api)

	return nil
}
