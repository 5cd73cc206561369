package api

import (
	"receipt-api/internal/apperrors"
	"receipt-api/internal/response"
	"receipt-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// respondError converts any service error into the error envelope. It is the
// only place errors become HTTP responses.
func respondError(c *gin.Context, err error) {
	classified := apperrors.Classify(err)

	logger := logging.Logger()
	event := logger.Warn()
	if classified.Status >= 500 {
		event = logger.Error()
	}
	event.Err(err).
		Str("path", c.Request.URL.Path).
		Str("code", classified.Code).
		Int("status", classified.Status).
		Msg("request failed")

	response.JSON(c, classified.Status, response.ErrorResponse{
		Error:       classified.Message,
		Code:        classified.Code,
		AppleStatus: classified.AppleStatus,
	})
}
