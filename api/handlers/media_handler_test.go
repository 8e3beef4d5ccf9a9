package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
)

const testURL = "https://www.youtube.com/watch?v=abc123"

type stubExtractor struct {
	fs       afero.Fs
	probeErr error
	release  chan struct{}
	content  []byte
}

func (s *stubExtractor) Name() string { return "stub" }

func (s *stubExtractor) Probe(context.Context, string) (*domain.MediaDescriptor, error) {
	if s.probeErr != nil {
		return nil, s.probeErr
	}
	return &domain.MediaDescriptor{
		ID:     "abc123",
		Title:  "Café tour",
		Author: "Tester",
		Formats: []domain.FormatOption{
			{ID: "18", Kind: domain.KindVideo, Label: "360p", Height: 360, Ext: "mp4"},
			{ID: "140", Kind: domain.KindAudio, Label: "128kbps", Bitrate: 128, Ext: "m4a"},
		},
	}, nil
}

func (s *stubExtractor) Fetch(_ context.Context, req domain.FetchRequest, onProgress domain.ProgressFunc) (string, error) {
	if s.release != nil {
		<-s.release
	}
	onProgress(int64(len(s.content)), int64(len(s.content)), 0)
	path := fmt.Sprintf("/downloads/%s_%d.%s", req.Format.Kind, time.Now().UnixNano(), req.Format.Ext)
	return path, afero.WriteFile(s.fs, path, s.content, 0644)
}

type handlerFixture struct {
	router    *gin.Engine
	service   *app.MediaService
	extractor *stubExtractor
}

func newHandlerFixture(t *testing.T, history domain.HistoryRepository) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/downloads", 0755))
	extractor := &stubExtractor{fs: fs, content: []byte("media bytes")}
	store := app.NewSessionStore()
	runner := app.NewJobRunner(store, extractor, nil, fs, app.RunnerConfig{MaxFileSize: 1 << 20}, zap.NewNop())
	service := app.NewMediaService(store, runner, extractor, fs, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = service.Shutdown(ctx)
	})

	h := NewMediaHandler(service, history, "http://localhost:5000", zap.NewNop())
	router := gin.New()
	router.POST("/api/extract", h.Extract)
	router.POST("/api/download", h.Download)
	router.GET("/api/status/:download_id", h.Status)
	router.GET("/download/:download_id", h.File)
	router.POST("/api/cancel", h.Cancel)
	router.POST("/api/cleanup", h.Cleanup)
	router.GET("/api/history", h.History)
	router.GET("/api/stats", h.Stats)

	return &handlerFixture{router: router, service: service, extractor: extractor}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var decoded map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func (f *handlerFixture) extract(t *testing.T) string {
	t.Helper()
	w, body := f.do(t, http.MethodPost, "/api/extract", gin.H{"url": testURL})
	require.Equal(t, http.StatusOK, w.Code)
	video := body["video"].(map[string]any)
	return video["session_id"].(string)
}

func TestExtract(t *testing.T) {
	f := newHandlerFixture(t, nil)

	w, body := f.do(t, http.MethodPost, "/api/extract", gin.H{"url": testURL})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	video := body["video"].(map[string]any)
	assert.Equal(t, "abc123", video["id"])
	assert.NotEmpty(t, video["session_id"])
	formats := video["formats"].([]any)
	require.Len(t, formats, 2)
	first := formats[0].(map[string]any)
	assert.Equal(t, "18", first["format_id"])
	assert.Equal(t, "video", first["type"])
	assert.Equal(t, "360p", first["resolution"])
}

func TestExtract_Errors(t *testing.T) {
	f := newHandlerFixture(t, nil)

	w, body := f.do(t, http.MethodPost, "/api/extract", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", body["kind"])

	w, body = f.do(t, http.MethodPost, "/api/extract", gin.H{"url": "https://example.com/x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", body["kind"])

	f.extractor.probeErr = errors.New("Private video")
	w, body = f.do(t, http.MethodPost, "/api/extract", gin.H{"url": testURL})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "extraction_failure", body["kind"])
	assert.Contains(t, body["error"], "Private video")
}

func TestDownloadLifecycle(t *testing.T) {
	f := newHandlerFixture(t, nil)
	id := f.extract(t)

	w, body := f.do(t, http.MethodPost, "/api/download", gin.H{"session_id": id, "format_id": "18", "format_type": "video"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, id, body["download_id"])
	assert.Equal(t, "/api/status/"+id, body["status_url"])

	var status map[string]any
	require.Eventually(t, func() bool {
		_, status = f.do(t, http.MethodGet, "/api/status/"+id, nil)
		return status["status"] == "completed"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(100), status["progress"])
	assert.Equal(t, "http://localhost:5000/download/"+id, status["download_url"])

	w, _ = f.do(t, http.MethodGet, "/download/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "media bytes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "filename*=utf-8''Caf%C3%A9%20tour.mp4")

	w, body = f.do(t, http.MethodPost, "/api/cleanup", gin.H{"session_id": id})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	w, _ = f.do(t, http.MethodGet, "/download/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = f.do(t, http.MethodGet, "/api/status/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownload_Errors(t *testing.T) {
	f := newHandlerFixture(t, nil)
	f.extractor.release = make(chan struct{})
	defer close(f.extractor.release)

	w, _ := f.do(t, http.MethodPost, "/api/download", gin.H{"session_id": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := f.do(t, http.MethodPost, "/api/download", gin.H{"session_id": "missing", "format_id": "18", "format_type": "video"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["kind"])

	id := f.extract(t)
	w, _ = f.do(t, http.MethodPost, "/api/download", gin.H{"session_id": id, "format_id": "18", "format_type": "audio"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "kind mismatch")

	w, _ = f.do(t, http.MethodPost, "/api/download", gin.H{"session_id": id, "format_id": "18", "format_type": "video"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w, body = f.do(t, http.MethodPost, "/api/download", gin.H{"session_id": id, "format_id": "140", "format_type": "audio"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", body["kind"])

	w, _ = f.do(t, http.MethodGet, "/download/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "file not ready")
}

func TestCancelAndCleanupAreIdempotent(t *testing.T) {
	f := newHandlerFixture(t, nil)

	for _, path := range []string{"/api/cancel", "/api/cleanup"} {
		w, body := f.do(t, http.MethodPost, path, gin.H{"session_id": "never-existed"})
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, true, body["success"], path)

		w, _ = f.do(t, http.MethodPost, path, gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	f.extractor.release = make(chan struct{})
	defer close(f.extractor.release)
	id := f.extract(t)
	w, _ := f.do(t, http.MethodPost, "/api/download", gin.H{"session_id": id, "format_id": "18", "format_type": "video"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/cancel", gin.H{"session_id": id})
	assert.Equal(t, http.StatusOK, w.Code)
	_, status := f.do(t, http.MethodGet, "/api/status/"+id, nil)
	assert.Equal(t, "cancelled", status["status"])
}

type stubHistory struct {
	records []*domain.DownloadRecord
	limit   int
}

func (s *stubHistory) Record(r *domain.DownloadRecord) error {
	s.records = append(s.records, r)
	return nil
}

func (s *stubHistory) Recent(limit int) ([]*domain.DownloadRecord, error) {
	s.limit = limit
	return s.records, nil
}

func (s *stubHistory) GetStats() (*domain.DownloadStats, error) {
	return &domain.DownloadStats{Total: int64(len(s.records)), Completed: int64(len(s.records))}, nil
}

func TestHistoryAndStats(t *testing.T) {
	history := &stubHistory{records: []*domain.DownloadRecord{{ID: 1, URL: testURL, Status: domain.StatusCompleted}}}
	f := newHandlerFixture(t, history)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, history.limit)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "completed", records[0]["status"])

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := f.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stub", body["backend"])
	assert.Equal(t, float64(1), body["history"].(map[string]any)["completed"])
}

func TestHistoryDisabled(t *testing.T) {
	f := newHandlerFixture(t, nil)

	w, _ := f.do(t, http.MethodGet, "/api/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, body := f.do(t, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, body, "history")
}
