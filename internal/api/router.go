package api

import (
	"labelens-backend/config"
	adminUser "labelens-backend/internal/api/v1/admin/user"
	"labelens-backend/internal/api/v1/analysis"
	"labelens-backend/internal/api/v1/auth"
	"labelens-backend/internal/api/v1/billing"
	"labelens-backend/internal/api/v1/common/upload"
	userRoutes "labelens-backend/internal/api/v1/user"
	"labelens-backend/internal/database"
	"labelens-backend/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter() (*gin.Engine, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	_, err = database.Connect(cfg.DSN())
	if err != nil {
		return nil, err
	}

	err = database.ConnectRedis(cfg)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.Logger(), gin.Recovery())

	// Configure CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum age for preflight requests
	}))

	// API v1
	v1 := router.Group("/api/v1")
	{
		auth.RegisterRoutes(v1)

		// The payment provider authenticates with its signature, not a
		// session token.
		billing.RegisterWebhookRoutes(v1)

		authorized := v1.Group("/")
		authorized.Use(middleware.AuthMiddleware())
		{
			userRoutes.RegisterRoutes(authorized)
			analysis.RegisterRoutes(authorized)
			billing.RegisterRoutes(authorized)
			upload.RegisterRoutes(authorized)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware())
		{
			adminUser.RegisterRoutes(admin)
		}
	}

	return router, nil
}
