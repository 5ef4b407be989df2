// Package handlers contains the HTTP handlers and routing.
package handlers

import (
	"github.com/gin-gonic/gin"
)

// RouterConfig holds what the router needs besides the handlers.
type RouterConfig struct {
	GinMode        string
	JWTSecret      string
	InternalAPIKey string
	RateLimit      gin.HandlerFunc
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(reservations *ReservationHandler, webhooks *WebhookHandler, cfg RouterConfig) *gin.Engine {
	gin.SetMode(cfg.GinMode)

	rateLimit := cfg.RateLimit
	if rateLimit == nil {
		rateLimit = func(c *gin.Context) { c.Next() }
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RequestIDMiddleware())

	// Health check (public)
	router.GET("/health", reservations.Health)

	// API v1 routes (requires user JWT)
	v1 := router.Group("/api/v1")
	v1.Use(JWTAuthMiddleware(cfg.JWTSecret), rateLimit)
	{
		r := v1.Group("/reservations")
		r.POST("", reservations.CreateReservation)
		r.GET("", reservations.ListReservations)
		r.GET("/:id", reservations.GetReservation)
		r.POST("/:id/pay-link", reservations.RequestPayLink)
		r.POST("/:id/start", reservations.StartService)
		r.POST("/:id/cancel", reservations.CancelReservation)
		r.POST("/:id/confirm", reservations.ConfirmCompletion)
		r.GET("/:id/review-eligibility", reservations.ReviewEligibility)
		r.POST("/:id/reviews", reservations.SubmitReview)
	}

	// Internal routes (service-to-service)
	internal := router.Group("/internal")
	internal.Use(ServiceAuthMiddleware(cfg.InternalAPIKey))
	{
		internal.POST("/offerings/:provider_id/:service_id/price", reservations.RepriceOffering)
	}

	// Webhook endpoint (public, validates x-signature). Not rate limited: the
	// gateway retries anything but a 2xx.
	router.POST("/webhooks/mercadopago", webhooks.HandleWebhook)

	return router
}
