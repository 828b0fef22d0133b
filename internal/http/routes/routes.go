package routes

import (
	"net/http"

	"github.com/Muneerali199/DocMagic-sub004/internal/http/handlers"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers обработчики и middleware, собранные в app.
type Handlers struct {
	Credits    *handlers.CreditsHandler
	Generation *handlers.GenerationHandler
	Billing    *handlers.BillingHandler
	Webhook    *handlers.WebhookHandler

	Health      gin.HandlerFunc
	Metrics     http.Handler
	Logger      gin.HandlerFunc
	CORS        gin.HandlerFunc
	RequireAuth gin.HandlerFunc
	RateLimit   gin.HandlerFunc
}

// SetupRoutes настраивает все маршруты API для Gin роутера
func SetupRoutes(router *gin.Engine, h Handlers, log *logger.Logger) {
	// Промежуточное ПО для всех запросов
	router.Use(gin.Recovery())
	if h.Logger != nil {
		router.Use(h.Logger)
	}
	if h.CORS != nil {
		router.Use(h.CORS)
	}

	// Публичные маршруты (без аутентификации)
	router.GET("/health", h.Health)
	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics))
	}
	router.POST("/webhooks/stripe", h.Webhook.HandleStripeWebhook)

	// Защищенные маршруты (требуют аутентификации)
	auth := router.Group("")
	auth.Use(h.RequireAuth)
	if h.RateLimit != nil {
		auth.Use(h.RateLimit)
	}

	credits := auth.Group("/credits")
	{
		credits.GET("", h.Credits.GetCredits)
		credits.POST("", h.Credits.ConsumeCredits)
		credits.GET("/usage", h.Credits.ListUsage)
	}

	generate := auth.Group("/generate")
	{
		generate.POST("/diagram", h.Generation.Diagram)
		generate.POST("/letter", h.Generation.Letter)
		generate.POST("/cover-letter", h.Generation.CoverLetter)
		generate.POST("/ats", h.Generation.ATS)
		generate.POST("/resume", h.Generation.Resume)
		generate.POST("/presentation", h.Generation.Presentation)
	}

	billing := auth.Group("/billing")
	{
		billing.GET("/plans", h.Billing.ListPlans)
		billing.POST("/checkout", h.Billing.CreateCheckout)
		billing.POST("/portal", h.Billing.CreatePortal)
	}

	log.Infow("API routes successfully configured")
}
