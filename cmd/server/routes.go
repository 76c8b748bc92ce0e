package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/campusgig/internal/middleware"
	"github.com/huangang/campusgig/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	r.GET("/health", svc.healthHandler.CheckHealth)

	api := r.Group("/api")
	{
		// SSE Events (public route with internal token validation)
		api.GET("/events/reviews", svc.sseHandler.StreamRevealEvents)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.AuditLog())
		{
			// Jobs
			protected.GET("/jobs/:id", svc.jobHandler.Get)
			protected.POST("/jobs/:id/complete", svc.jobHandler.Complete)
			protected.POST("/jobs/:id/transition", svc.jobHandler.Transition)
			protected.GET("/jobs/:id/review-eligibility", svc.jobHandler.Eligibility)
			protected.GET("/jobs/:id/reviews", svc.reviewHandler.ListForJob)

			// Reviews (writes are rate limited per user)
			writeLimiter := middleware.RateLimit(svc.cfg.Review.WriteRateLimit, svc.cfg.Review.WriteBurst)
			protected.GET("/reviews/:id", svc.reviewHandler.Get)
			protected.POST("/reviews", writeLimiter, svc.reviewHandler.Create)
			protected.PUT("/reviews/:id", writeLimiter, svc.reviewHandler.Update)
			protected.DELETE("/reviews/:id", writeLimiter, svc.reviewHandler.Delete)

			// Users
			protected.GET("/users/:id/reviews", svc.reviewHandler.ListForUser)
			protected.GET("/users/:id/review-stats", svc.reviewHandler.Stats)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			admin.POST("/reviews/sweep", svc.reviewHandler.Sweep)
			admin.GET("/system-logs", svc.systemLogHandler.List)
		}
	}
}
