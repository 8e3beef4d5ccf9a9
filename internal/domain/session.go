package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DownloadStatus represents the current status of a session's download
type DownloadStatus string

const (
	StatusIdle        DownloadStatus = "idle"
	StatusPreparing   DownloadStatus = "preparing"
	StatusDownloading DownloadStatus = "downloading"
	StatusCompleted   DownloadStatus = "completed"
	StatusFailed      DownloadStatus = "failed"
	StatusCancelled   DownloadStatus = "cancelled"
)

// IsLive reports whether a background job runs in this status
func (s DownloadStatus) IsLive() bool {
	return s == StatusPreparing || s == StatusDownloading
}

// IsTerminal reports whether no further transitions are allowed
func (s DownloadStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// FailureKind explains why a session ended in StatusFailed
type FailureKind string

const (
	FailureDownload  FailureKind = "download_failure"
	FailureSizeLimit FailureKind = "size_limit_exceeded"
)

// Session tracks one user's interaction from probe to delivery
type Session struct {
	ID          string           `json:"session_id"`
	URL         string           `json:"url"`
	Media       *MediaDescriptor `json:"media,omitempty"`
	Format      *FormatOption    `json:"format,omitempty"`
	Status      DownloadStatus   `json:"status"`
	Downloaded  int64            `json:"downloaded"`
	Total       int64            `json:"total"`
	ETA         int              `json:"eta"` // seconds
	FilePath    string           `json:"-"`
	FileSize    int64            `json:"file_size,omitempty"`
	Error       string           `json:"error,omitempty"`
	FailureKind FailureKind      `json:"failure_kind,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewSession creates an idle session for a probed resource
func NewSession(url string, media *MediaDescriptor) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		URL:       url,
		Media:     media,
		Status:    StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy that shares only the immutable descriptor
func (s *Session) Clone() Session {
	c := *s
	if s.Format != nil {
		f := *s.Format
		c.Format = &f
	}
	return c
}

// Percent returns download progress in percent, or -1 when the total is unknown
func (s *Session) Percent() float64 {
	switch {
	case s.Status == StatusCompleted:
		return 100
	case s.Total <= 0:
		return -1
	}
	p := float64(s.Downloaded) / float64(s.Total) * 100
	if p > 100 {
		p = 100
	}
	return p
}

func (s *Session) transition(to DownloadStatus, allowed ...DownloadStatus) error {
	for _, from := range allowed {
		if s.Status == from {
			s.Status = to
			s.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
}

// MarkPreparing records the chosen format and moves an idle session to preparing
func (s *Session) MarkPreparing(format FormatOption) error {
	if err := s.transition(StatusPreparing, StatusIdle); err != nil {
		return err
	}
	s.Format = &format
	s.Error = ""
	s.FailureKind = ""
	return nil
}

// MarkDownloading records that the engine started transferring bytes
func (s *Session) MarkDownloading() error {
	if s.Status == StatusDownloading {
		return nil
	}
	return s.transition(StatusDownloading, StatusPreparing)
}

// ApplyProgress stores a progress tick; ticks are rejected once terminal
func (s *Session) ApplyProgress(downloaded, total int64, eta int) error {
	if !s.Status.IsLive() {
		return fmt.Errorf("%w: progress in status %s", ErrInvalidTransition, s.Status)
	}
	if err := s.MarkDownloading(); err != nil {
		return err
	}
	s.Downloaded = downloaded
	s.Total = total
	s.ETA = eta
	s.UpdatedAt = time.Now()
	return nil
}

// MarkCompleted marks the download as completed
func (s *Session) MarkCompleted(filePath string, size int64) error {
	if err := s.transition(StatusCompleted, StatusPreparing, StatusDownloading); err != nil {
		return err
	}
	s.FilePath = filePath
	s.FileSize = size
	if size > 0 {
		s.Downloaded = size
		s.Total = size
	}
	s.ETA = 0
	return nil
}

// MarkFailed marks the download as failed
func (s *Session) MarkFailed(kind FailureKind, cause error) error {
	if err := s.transition(StatusFailed, StatusPreparing, StatusDownloading); err != nil {
		return err
	}
	s.FailureKind = kind
	if cause != nil {
		s.Error = cause.Error()
	}
	s.ETA = 0
	return nil
}

// MarkCancelled cancels a session that has not reached a terminal status
func (s *Session) MarkCancelled() error {
	return s.transition(StatusCancelled, StatusIdle, StatusPreparing, StatusDownloading)
}
