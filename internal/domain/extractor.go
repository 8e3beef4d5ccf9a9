package domain

import (
	"context"
	"time"
)

// ProgressFunc receives raw transfer ticks from an extractor. total is an
// estimate and may be 0 when unknown; eta is 0 when unknown.
type ProgressFunc func(downloaded, total int64, eta time.Duration)

// FetchRequest describes one transfer
type FetchRequest struct {
	URL    string
	Format FormatOption
}

// Extractor wraps a media engine behind probe and fetch
type Extractor interface {
	// Name returns the backend name used in logs and history
	Name() string

	// Probe resolves a URL into a descriptor without transferring media
	Probe(ctx context.Context, url string) (*MediaDescriptor, error)

	// Fetch transfers the selected format into the download directory and
	// returns the produced file path
	Fetch(ctx context.Context, req FetchRequest, onProgress ProgressFunc) (string, error)
}
