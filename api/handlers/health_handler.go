package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/yt-fetch-go/internal/app"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	service *app.MediaService
	sweeper *app.RetentionSweeper
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *app.MediaService, sweeper *app.RetentionSweeper) *HealthHandler {
	return &HealthHandler{
		service: service,
		sweeper: sweeper,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Backend    string `json:"backend"`
	ActiveJobs int    `json:"active_jobs"`
	Sessions   int    `json:"sessions"`
	Sweeper    struct {
		Running bool `json:"running"`
	} `json:"sweeper"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:     "ok",
		Version:    Version,
		Backend:    h.service.Backend(),
		ActiveJobs: h.service.ActiveJobs(),
		Sessions:   h.service.SessionCount(),
	}
	response.Sweeper.Running = h.sweeper.IsRunning()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.sweeper.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "retention sweeper not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
