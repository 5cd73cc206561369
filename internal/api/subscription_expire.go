package api

import (
	"receipt-api/internal/response"

	"github.com/gin-gonic/gin"
)

// ExpireSubscriptionResponse represents expire subscription response
type ExpireSubscriptionResponse struct {
	OriginalTransactionID string `json:"original_transaction_id"`
	Expired               bool   `json:"expired"`
}

// ExpireSubscription deactivates a subscription lineage. Expiring a lineage
// with no active row is a no-op that reports expired=false.
// POST /api/admin/subscriptions/:original_transaction_id/expire
func (h *Handler) ExpireSubscription(c *gin.Context) {
	originalTransactionID := c.Param("original_transaction_id")
	expired, err := h.subscriptions.ExpireSubscription(c.Request.Context(), originalTransactionID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessJSON(c, ExpireSubscriptionResponse{
		OriginalTransactionID: originalTransactionID,
		Expired:               expired,
	})
}
