package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tietpapers/models"
)

// CORS allows any origin to call the wrapper, answering preflight requests
// directly.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// failure builds the error body every middleware rejection uses.
func failure(code, message string) models.FailureResponse {
	return models.FailureResponse{
		Error:  message,
		Detail: &models.ErrorDetail{Code: code, Message: message},
	}
}
