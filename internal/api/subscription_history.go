package api

import (
	"receipt-api/internal/models"
	"receipt-api/internal/response"

	"github.com/gin-gonic/gin"
)

// SubscriptionHistoryResponse represents subscription history response
type SubscriptionHistoryResponse struct {
	UserID  string                       `json:"user_id"`
	Entries []models.SubscriptionHistory `json:"entries"`
}

// GetSubscriptionHistory lists the audit trail for a user
// GET /api/subscription/history?user_id=xxx
func (h *Handler) GetSubscriptionHistory(c *gin.Context) {
	userID := c.Query("user_id")
	entries, err := h.subscriptions.ListHistory(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []models.SubscriptionHistory{}
	}

	response.SuccessJSON(c, SubscriptionHistoryResponse{
		UserID:  userID,
		Entries: entries,
	})
}
