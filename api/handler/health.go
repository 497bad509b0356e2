package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tietpapers/models"
)

// Version is reported by the status endpoints.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
func Health(runs *Runs, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     "healthy",
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			ActiveRuns: runs.Active(),
			Version:    Version,
		})
	}
}

// Root returns a handler for GET /, a liveness message for the front end.
func Root() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "tietpapers backend is running",
			"version": Version,
		})
	}
}
