package api

import (
	"receipt-api/internal/apperrors"
	"receipt-api/internal/response"
	"receipt-api/internal/services"

	"github.com/gin-gonic/gin"
)

// VerifyReceiptRequest represents verify receipt request
type VerifyReceiptRequest struct {
	ReceiptData string `json:"receipt-data"` // Base64 App Store receipt
	UserID      string `json:"userId"`
}

// VerifyReceipt validates a receipt with Apple and stores the subscription
// POST /verify-receipt
func (h *Handler) VerifyReceipt(c *gin.Context) {
	var req VerifyReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError(apperrors.CodeInvalidRequest, "invalid request body"))
		return
	}

	result, err := h.subscriptions.VerifyReceipt(c.Request.Context(), services.VerifyReceiptInput{
		ReceiptData: req.ReceiptData,
		UserID:      req.UserID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessJSON(c, result)
}
