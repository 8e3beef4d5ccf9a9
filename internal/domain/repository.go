package domain

import "time"

// DownloadRecord is an audit entry for a finished download. Sessions are
// never restored from it.
type DownloadRecord struct {
	ID         uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID  string         `json:"session_id" gorm:"index"`
	URL        string         `json:"url" gorm:"not null"`
	Title      string         `json:"title"`
	FormatID   string         `json:"format_id"`
	Kind       FormatKind     `json:"type"`
	Status     DownloadStatus `json:"status" gorm:"not null;index"`
	FileSize   int64          `json:"file_size"`
	Error      string         `json:"error,omitempty"`
	Backend    string         `json:"backend"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at" gorm:"index"`
}

// NewDownloadRecord builds a history entry from a terminal session
func NewDownloadRecord(s Session, backend string) *DownloadRecord {
	rec := &DownloadRecord{
		SessionID:  s.ID,
		URL:        s.URL,
		Status:     s.Status,
		FileSize:   s.FileSize,
		Error:      s.Error,
		Backend:    backend,
		StartedAt:  s.CreatedAt,
		FinishedAt: time.Now(),
	}
	if s.Media != nil {
		rec.Title = s.Media.Title
	}
	if s.Format != nil {
		rec.FormatID = s.Format.ID
		rec.Kind = s.Format.Kind
	}
	return rec
}

// HistoryRepository defines the interface for download history persistence
type HistoryRepository interface {
	// Record stores a finished download
	Record(record *DownloadRecord) error

	// Recent returns the latest records, newest first
	Recent(limit int) ([]*DownloadRecord, error)

	// GetStats returns aggregated counters
	GetStats() (*DownloadStats, error)
}

// DownloadStats represents download statistics
type DownloadStats struct {
	Total      int64 `json:"total"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
	TotalBytes int64 `json:"total_bytes"`
}
