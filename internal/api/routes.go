package api

import (
	"context"
	"net/http"

	"receipt-api/internal/middleware"
	"receipt-api/internal/models"
	"receipt-api/internal/response"
	"receipt-api/internal/services"

	"github.com/gin-gonic/gin"
)

// SubscriptionService is the service surface the handlers depend on.
type SubscriptionService interface {
	VerifyReceipt(ctx context.Context, in services.VerifyReceiptInput) (*services.VerifyReceiptResult, error)
	GetSubscriptionStatus(ctx context.Context, userID string) (*services.SubscriptionStatus, error)
	CheckPremiumStatus(ctx context.Context, userID string) (bool, error)
	ExpireSubscription(ctx context.Context, originalTransactionID string) (bool, error)
	ListHistory(ctx context.Context, userID string) ([]models.SubscriptionHistory, error)
}

// Handler serves the HTTP API.
type Handler struct {
	subscriptions SubscriptionService
	health        *HealthChecker
}

// NewHandler creates a Handler.
func NewHandler(subscriptions SubscriptionService, health *HealthChecker) *Handler {
	return &Handler{
		subscriptions: subscriptions,
		health:        health,
	}
}

// RouteOptions configures route-level middleware.
type RouteOptions struct {
	AdminAPIKey string
	// RateLimiter guards the public subscription endpoints when set.
	RateLimiter    gin.HandlerFunc
	MetricsHandler http.Handler
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine, h *Handler, opts RouteOptions) {
	public := []gin.HandlerFunc{}
	if opts.RateLimiter != nil {
		public = append(public, opts.RateLimiter)
	}

	r.POST("/verify-receipt", append(public, h.VerifyReceipt)...)

	api := r.Group("/api")
	{
		// Client API
		subscription := api.Group("/subscription")
		subscription.Use(public...)
		{
			subscription.POST("/verify-receipt", h.VerifyReceipt)
			subscription.GET("/status", h.GetSubscriptionStatus)
			subscription.GET("/premium", h.CheckPremiumStatus)
		}

		// App backend and operator API
		admin := api.Group("")
		admin.Use(middleware.AdminAuth(opts.AdminAPIKey))
		{
			admin.GET("/subscription/history", h.GetSubscriptionHistory)
			admin.POST("/admin/subscriptions/:original_transaction_id/expire", h.ExpireSubscription)
		}
	}

	r.GET("/health", h.Health)
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	r.NoRoute(func(c *gin.Context) {
		response.ErrorJSON(c, http.StatusNotFound, response.CodeNotFound, "route not found")
	})
}
