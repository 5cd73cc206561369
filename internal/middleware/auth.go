package middleware

import (
	"crypto/subtle"
	"net/http"

	"receipt-api/internal/response"

	"github.com/gin-gonic/gin"
)

// AdminKeyHeader carries the admin API key.
const AdminKeyHeader = "X-API-Key"

// AdminAuth guards administrative routes with a static API key. When no key
// is configured every request is rejected.
func AdminAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(AdminKeyHeader)

		if apiKey == "" {
			response.AbortWithError(c, http.StatusUnauthorized, response.CodeUnauthorized, "admin API is disabled")
			return
		}
		if provided == "" {
			response.AbortWithError(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing API key")
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			response.AbortWithError(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid API key")
			return
		}

		c.Next()
	}
}
