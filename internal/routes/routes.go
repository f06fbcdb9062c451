package routes

import (
	"os"
	"strings"
	"time"

	"velora_back_end/internal/handlers/payement"
	"velora_back_end/internal/handlers/user"
	"velora_back_end/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine) {
	// CORS : origines front autorisées via .env (CSV), localhost par défaut
	origins := os.Getenv("CORS_ORIGINS")
	if origins == "" {
		origins = "http://localhost:3000"
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(origins, ","),
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Webhooks gateways : publics, authentifiés par signature (pas de JWT)
	r.POST("/api/webhooks/:provider", payement.HandleWebhook)

	// Routes utilisateur authentifié
	api := r.Group("/api", middleware.AuthRequired())
	{
		api.POST("/checkout", payement.Checkout)
		api.GET("/orders", user.GetMyOrders)
		api.GET("/orders/:id", user.GetOrderByID)
		api.GET("/orders/ws", user.OrderWebSocket)
	}

	// Routes admin
	admin := r.Group("/api/admin", middleware.AuthRequired(), middleware.RequireAdmin)
	{
		admin.GET("/orders", payement.GetAllOrders)
		admin.GET("/orders/stats", payement.GetOrderStats)
		admin.PATCH("/orders/:id/status", payement.UpdateOrderStatus)
	}
}
