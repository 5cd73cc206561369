package api

import (
	"receipt-api/internal/response"

	"github.com/gin-gonic/gin"
)

// PremiumStatusResponse represents premium status response
type PremiumStatusResponse struct {
	UserID    string `json:"user_id"`
	IsPremium bool   `json:"is_premium"`
}

// GetSubscriptionStatus returns the stored active subscription without calling Apple
// GET /api/subscription/status?user_id=xxx
func (h *Handler) GetSubscriptionStatus(c *gin.Context) {
	status, err := h.subscriptions.GetSubscriptionStatus(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessJSON(c, status)
}

// CheckPremiumStatus answers whether the user currently has premium access
// GET /api/subscription/premium?user_id=xxx
func (h *Handler) CheckPremiumStatus(c *gin.Context) {
	userID := c.Query("user_id")
	premium, err := h.subscriptions.CheckPremiumStatus(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessJSON(c, PremiumStatusResponse{
		UserID:    userID,
		IsPremium: premium,
	})
}
