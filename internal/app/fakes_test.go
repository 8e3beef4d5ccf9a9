package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

const testURL = "https://youtu.be/abc123"

func testMedia() *domain.MediaDescriptor {
	return &domain.MediaDescriptor{
		ID:       "abc123",
		Title:    "Test video",
		Author:   "Tester",
		Duration: 212,
		Formats: []domain.FormatOption{
			{ID: "22", Kind: domain.KindVideo, Label: "720p", Height: 720, Ext: "mp4"},
			{ID: "18", Kind: domain.KindVideo, Label: "480p", Height: 480, Ext: "mp4", Size: 30 << 10},
			{ID: "140", Kind: domain.KindAudio, Label: "128kbps", Bitrate: 128, Ext: "m4a"},
		},
	}
}

// fakeExtractor writes files into an afero filesystem
type fakeExtractor struct {
	fs       afero.Fs
	dir      string
	media    *domain.MediaDescriptor
	probeErr error

	// fetch behaviour
	fileSize int64
	ticks    []int64
	fetchErr error
	release  chan struct{} // when set, fetch blocks until closed
	missing  bool          // return a path that was never written

	probes  atomic.Int32
	fetches atomic.Int32
	seq     atomic.Int32
	mu      sync.Mutex
	paths   []string
}

func newFakeExtractor(fs afero.Fs) *fakeExtractor {
	return &fakeExtractor{fs: fs, dir: "/downloads", media: testMedia(), fileSize: 1024}
}

func (f *fakeExtractor) Name() string { return "fake" }

func (f *fakeExtractor) Probe(_ context.Context, _ string) (*domain.MediaDescriptor, error) {
	f.probes.Add(1)
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return f.media, nil
}

func (f *fakeExtractor) Fetch(_ context.Context, req domain.FetchRequest, onProgress domain.ProgressFunc) (string, error) {
	f.fetches.Add(1)

	path := fmt.Sprintf("%s/%s_%d.%s", f.dir, req.Format.Kind, f.seq.Add(1), req.Format.Ext)
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()

	for _, tick := range f.ticks {
		onProgress(tick, f.fileSize, time.Duration(f.fileSize-tick)*time.Millisecond)
	}

	if f.release != nil {
		<-f.release
	}

	if f.missing {
		return path, nil
	}

	file, err := f.fs.Create(path)
	if err != nil {
		return "", err
	}
	if err := file.Truncate(f.fileSize); err != nil {
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}

	if f.fetchErr != nil {
		return path, f.fetchErr
	}
	return path, nil
}

func (f *fakeExtractor) lastPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.paths) == 0 {
		return ""
	}
	return f.paths[len(f.paths)-1]
}

// fakeHistory records history entries in memory
type fakeHistory struct {
	mu      sync.Mutex
	records []*domain.DownloadRecord
}

func (h *fakeHistory) Record(record *domain.DownloadRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	return nil
}

func (h *fakeHistory) Recent(limit int) ([]*domain.DownloadRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.records, nil
}

func (h *fakeHistory) GetStats() (*domain.DownloadStats, error) {
	return &domain.DownloadStats{}, nil
}

func (h *fakeHistory) statuses() []domain.DownloadStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.DownloadStatus, len(h.records))
	for i, r := range h.records {
		out[i] = r.Status
	}
	return out
}
