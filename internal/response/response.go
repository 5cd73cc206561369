package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Codes for failures raised outside the service layer.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeRateLimited  = "RATE_LIMITED"
	CodeNotFound     = "NOT_FOUND"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	Error       string `json:"error"`
	Code        string `json:"code"`
	AppleStatus int    `json:"apple_status,omitempty"`
}

// Error builds an error envelope.
func Error(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: message,
		Code:  code,
	}
}

// JSON sends a JSON response
func JSON(c *gin.Context, statusCode int, body interface{}) {
	c.JSON(statusCode, body)
}

// SuccessJSON sends a 200 response
func SuccessJSON(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data)
}

// ErrorJSON sends an error envelope
func ErrorJSON(c *gin.Context, statusCode int, code, message string) {
	JSON(c, statusCode, Error(code, message))
}

// AbortWithError sends an error envelope and stops the handler chain
func AbortWithError(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, Error(code, message))
}
