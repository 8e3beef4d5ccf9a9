package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
)

type noopExtractor struct{}

func (noopExtractor) Name() string { return "noop" }

func (noopExtractor) Probe(context.Context, string) (*domain.MediaDescriptor, error) {
	return nil, domain.ErrExtractionFailure
}

func (noopExtractor) Fetch(context.Context, domain.FetchRequest, domain.ProgressFunc) (string, error) {
	return "", domain.ErrDownloadFailure
}

func newTestRouter(t *testing.T) (http.Handler, *app.RetentionSweeper) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store := app.NewSessionStore()
	runner := app.NewJobRunner(store, noopExtractor{}, nil, fs, app.RunnerConfig{MaxFileSize: 1 << 20}, zap.NewNop())
	service := app.NewMediaService(store, runner, noopExtractor{}, fs, zap.NewNop())
	sweeper := app.NewRetentionSweeper(fs, "/downloads", time.Hour, time.Hour, zap.NewNop())

	return SetupRouter(service, sweeper, nil, domain.DefaultConfig(), zap.NewNop()), sweeper
}

func TestRouter_ServesUI(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "/static/app.js")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/extract")
}

func TestRouter_HealthAndReady(t *testing.T) {
	router, sweeper := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"backend":"noop"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	require.NoError(t, sweeper.Start(context.Background()))
	defer sweeper.Stop()

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}
