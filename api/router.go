package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/api/handlers"
	"github.com/yourusername/yt-fetch-go/api/middleware"
	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
	"github.com/yourusername/yt-fetch-go/web"
)

// SetupRouter sets up the HTTP router for the web surface
func SetupRouter(
	service *app.MediaService,
	sweeper *app.RetentionSweeper,
	history domain.HistoryRepository,
	config *domain.Config,
	log *zap.Logger,
) *gin.Engine {
	if config.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(log, "/api/status/", "/static/", "/health"))
	router.Use(middleware.Recovery(log))

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(service, sweeper)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	mediaHandler := handlers.NewMediaHandler(service, history, config.Server.BaseURL, log)
	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/extract", mediaHandler.Extract)
		apiGroup.POST("/download", mediaHandler.Download)
		apiGroup.GET("/status/:download_id", mediaHandler.Status)
		apiGroup.POST("/cancel", mediaHandler.Cancel)
		apiGroup.POST("/cleanup", mediaHandler.Cleanup)
		apiGroup.GET("/history", mediaHandler.History)
		apiGroup.GET("/stats", mediaHandler.Stats)
	}
	router.GET("/download/:download_id", mediaHandler.File)

	// Embedded UI
	router.StaticFS("/static", http.FS(web.GetStaticFS()))
	router.GET("/", serveIndex(log))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "kind": "not_found"})
	})

	return router
}

func serveIndex(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := web.IndexHTML()
		if err != nil {
			log.Error("Failed to read embedded index", zap.Error(err))
			c.String(http.StatusInternalServerError, "index not available")
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	}
}
