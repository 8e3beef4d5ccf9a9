package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the extractor, the job runner and both surfaces.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrExtractionFailure = errors.New("extraction failed")
	ErrDownloadFailure   = errors.New("download failed")
	ErrSizeLimitExceeded = errors.New("file size limit exceeded")
	ErrNotFound          = errors.New("session not found")
	ErrConflict          = errors.New("download already in progress")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// SizeLimitError reports a produced file that is larger than allowed
type SizeLimitError struct {
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("%s: file is %d bytes, limit is %d bytes", ErrSizeLimitExceeded, e.Size, e.Limit)
}

// Is makes errors.Is(err, ErrSizeLimitExceeded) match
func (e *SizeLimitError) Is(target error) bool {
	return target == ErrSizeLimitExceeded
}

// ErrorKind maps an error onto a stable code for API consumers
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrExtractionFailure):
		return "extraction_failure"
	case errors.Is(err, ErrSizeLimitExceeded):
		return "size_limit_exceeded"
	case errors.Is(err, ErrDownloadFailure):
		return "download_failure"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "internal"
	}
}
