package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"mark-operator.backend/internal/interfaces/http/handlers"
	"mark-operator.backend/internal/interfaces/http/middleware"
)

type routeDeps struct {
	webhookHandler *handlers.WebhookHandler
	adminHandler   *handlers.AdminHandler
	healthHandler  *handlers.HealthHandler
	webhookSecret  string
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/health", d.healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.WebhookAuthMiddleware(d.webhookSecret)

	r.POST("/webhook", auth, d.webhookHandler.HandleWebhook)

	admin := r.Group("/admin")
	admin.Use(auth)
	{
		admin.GET("/pause", d.adminHandler.GetPauseStatus)
		admin.POST("/pause", d.adminHandler.SetPause)
	}
}
