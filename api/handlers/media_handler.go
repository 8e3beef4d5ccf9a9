package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// MediaHandler serves the web surface's JSON API
type MediaHandler struct {
	service *app.MediaService
	history domain.HistoryRepository
	baseURL string
	logger  *zap.Logger
}

// NewMediaHandler creates a new media handler. history may be nil when the
// audit log is disabled.
func NewMediaHandler(service *app.MediaService, history domain.HistoryRepository, baseURL string, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{
		service: service,
		history: history,
		baseURL: baseURL,
		logger:  logger,
	}
}

// ExtractRequest represents a request to probe a link
type ExtractRequest struct {
	URL string `json:"url" binding:"required"`
}

// VideoResponse is the descriptor returned by Extract
type VideoResponse struct {
	ID        string                `json:"id"`
	Title     string                `json:"title"`
	Author    string                `json:"author"`
	Duration  int                   `json:"duration"`
	Views     int64                 `json:"views"`
	Thumbnail string                `json:"thumbnail"`
	Formats   []domain.FormatOption `json:"formats"`
	SessionID string                `json:"session_id"`
}

// DownloadRequest represents a request to start a download
type DownloadRequest struct {
	SessionID  string `json:"session_id" binding:"required"`
	FormatID   string `json:"format_id" binding:"required"`
	FormatType string `json:"format_type" binding:"required"`
}

// SessionRequest identifies a session for cancel and cleanup
type SessionRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// StatusResponse reports a download's state
type StatusResponse struct {
	Status      domain.DownloadStatus `json:"status"`
	Progress    float64               `json:"progress"`
	Downloaded  int64                 `json:"downloaded"`
	Total       int64                 `json:"total"`
	ETA         int                   `json:"eta"`
	Error       string                `json:"error,omitempty"`
	ErrorKind   domain.FailureKind    `json:"error_kind,omitempty"`
	DownloadURL string                `json:"download_url,omitempty"`
}

// Extract handles POST /api/extract
func (h *MediaHandler) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required", "kind": "invalid_input"})
		return
	}

	session, err := h.service.Probe(c.Request.Context(), req.URL)
	if err != nil {
		h.writeError(c, err)
		return
	}

	media := session.Media
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"video": VideoResponse{
			ID:        media.ID,
			Title:     media.Title,
			Author:    media.Author,
			Duration:  media.Duration,
			Views:     media.Views,
			Thumbnail: media.Thumbnail,
			Formats:   media.Formats,
			SessionID: session.ID,
		},
	})
}

// Download handles POST /api/download. The transfer runs in the
// background; clients poll the status URL.
func (h *MediaHandler) Download(c *gin.Context) {
	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id, format_id and format_type are required", "kind": "invalid_input"})
		return
	}

	// the web surface delivers by pull, so no delivery hook
	err := h.service.StartDownload(c.Request.Context(), req.SessionID, req.FormatID, domain.FormatKind(req.FormatType), app.JobHooks{})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":     true,
		"download_id": req.SessionID,
		"status_url":  "/api/status/" + req.SessionID,
	})
}

// Status handles GET /api/status/:download_id
func (h *MediaHandler) Status(c *gin.Context) {
	session, err := h.service.Status(c.Param("download_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := StatusResponse{
		Status:     session.Status,
		Progress:   session.Percent(),
		Downloaded: session.Downloaded,
		Total:      session.Total,
		ETA:        session.ETA,
		Error:      session.Error,
		ErrorKind:  session.FailureKind,
	}
	if session.Status == domain.StatusCompleted {
		resp.DownloadURL = h.baseURL + "/download/" + session.ID
	}

	c.JSON(http.StatusOK, resp)
}

// File handles GET /download/:download_id
func (h *MediaHandler) File(c *gin.Context) {
	file, name, err := h.service.OpenReader(c.Param("download_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), file)
}

// Cancel handles POST /api/cancel
func (h *MediaHandler) Cancel(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required", "kind": "invalid_input"})
		return
	}

	if err := h.service.Cancel(req.SessionID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Cleanup handles POST /api/cleanup
func (h *MediaHandler) Cleanup(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required", "kind": "invalid_input"})
		return
	}

	if err := h.service.Cleanup(req.SessionID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// History handles GET /api/history
func (h *MediaHandler) History(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500", "kind": "invalid_input"})
			return
		}
		limit = n
	}

	records, err := h.history.Recent(limit)
	if err != nil {
		h.logger.Error("Failed to list history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

// Stats handles GET /api/stats
func (h *MediaHandler) Stats(c *gin.Context) {
	resp := gin.H{
		"active_jobs": h.service.ActiveJobs(),
		"sessions":    h.service.SessionCount(),
		"backend":     h.service.Backend(),
	}

	if h.history != nil {
		stats, err := h.history.GetStats()
		if err != nil {
			h.logger.Error("Failed to get stats", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["history"] = stats
	}

	c.JSON(http.StatusOK, resp)
}

// writeError maps the error taxonomy onto HTTP status codes
func (h *MediaHandler) writeError(c *gin.Context, err error) {
	kind := domain.ErrorKind(err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrExtractionFailure):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSizeLimitExceeded):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrDownloadFailure):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}
