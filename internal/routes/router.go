package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"courier-sync/internal/config"
	"courier-sync/internal/handlers"
	"courier-sync/internal/logger"
	"courier-sync/internal/middleware"
	"courier-sync/internal/parcel/service"
	"courier-sync/internal/realtime"
	"courier-sync/internal/storage/postgres"
)

func SetupRoutes(cfg *config.Config, db *postgres.DB, parcelService *service.Service, notificationRepository *postgres.NotificationRepository, hub *realtime.Hub) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware in order: recovery, request ID, logging, security
	// headers, CORS, request size limit, general rate limit.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(&cfg.CORS))
	router.Use(middleware.RequestSizeLimitMiddleware(10 << 20))
	if cfg.RateLimit.GeneralRPS > 0 {
		router.Use(middleware.RateLimitMiddleware(cfg.RateLimit.GeneralRPS, cfg.RateLimit.GeneralBurst))
	}

	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "Database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"message":  "Service is running",
			"sessions": hub.SessionCount(),
		})
	})

	parcelHandler := handlers.NewParcelHandler(parcelService)
	trackingHandler := handlers.NewTrackingHandler(parcelService)
	notificationHandler := handlers.NewNotificationHandler(notificationRepository)
	wsHandler := handlers.NewWSHandler(hub, cfg.Realtime)

	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(cfg))
		{
			parcelHandler.RegisterRoutes(protected)
			notificationHandler.RegisterRoutes(protected)
			wsHandler.RegisterRoutes(protected)

			agent := protected.Group("")
			agent.Use(middleware.AgentOnly())
			{
				parcelHandler.RegisterAgentRoutes(agent)
				trackingHandler.RegisterAgentRoutes(agent)
			}

			admin := protected.Group("/admin")
			admin.Use(middleware.AdminOnly())
			{
				parcelHandler.RegisterAdminRoutes(admin)
			}
		}
	}

	logger.Info("All routes initialized")
	return router
}
