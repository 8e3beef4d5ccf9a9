package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// MediaService is the entry point shared by the web and chat surfaces
type MediaService struct {
	store     *SessionStore
	runner    *JobRunner
	extractor domain.Extractor
	fs        afero.Fs
	logger    *zap.Logger
}

// NewMediaService creates a new media service
func NewMediaService(
	store *SessionStore,
	runner *JobRunner,
	extractor domain.Extractor,
	fs afero.Fs,
	logger *zap.Logger,
) *MediaService {
	return &MediaService{
		store:     store,
		runner:    runner,
		extractor: extractor,
		fs:        fs,
		logger:    logger,
	}
}

// Probe validates the URL, resolves it and opens a new session
func (s *MediaService) Probe(ctx context.Context, url string) (domain.Session, error) {
	url = strings.TrimSpace(url)
	if _, err := domain.ParseVideoURL(url); err != nil {
		return domain.Session{}, err
	}

	media, err := s.extractor.Probe(ctx, url)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidInput) && !errors.Is(err, domain.ErrExtractionFailure) {
			err = fmt.Errorf("%w: %v", domain.ErrExtractionFailure, err)
		}
		s.logger.Warn("Probe failed", zap.String("url", url), zap.Error(err))
		return domain.Session{}, err
	}

	id := s.store.Create(url, media)
	s.logger.Info("Session created",
		zap.String("session_id", id),
		zap.String("video_id", media.ID),
		zap.Int("formats", len(media.Formats)))

	return s.store.Get(id)
}

// StartDownload starts the background job for a session. An empty kind
// accepts whatever kind the format has.
func (s *MediaService) StartDownload(ctx context.Context, sessionID, formatID string, kind domain.FormatKind, hooks JobHooks) error {
	session, err := s.store.Get(sessionID)
	if err != nil {
		return err
	}

	if kind != "" {
		if !domain.ValidateKind(kind) {
			return fmt.Errorf("%w: unknown format type %q", domain.ErrInvalidInput, kind)
		}
		if f, ok := session.Media.FindFormat(formatID); ok && f.Kind != kind {
			return fmt.Errorf("%w: format %s is %s, not %s", domain.ErrInvalidInput, formatID, f.Kind, kind)
		}
	}

	return s.runner.Start(ctx, sessionID, formatID, hooks)
}

// Status returns a snapshot of the session
func (s *MediaService) Status(sessionID string) (domain.Session, error) {
	return s.store.Get(sessionID)
}

// Cancel cancels the session's job; unknown sessions are a no-op
func (s *MediaService) Cancel(sessionID string) error {
	return s.runner.Cancel(sessionID)
}

// Cleanup cancels the job, deletes any produced file and forgets the
// session. It is idempotent.
func (s *MediaService) Cleanup(sessionID string) error {
	if err := s.runner.Cancel(sessionID); err != nil {
		return err
	}

	session, err := s.store.Get(sessionID)
	if err != nil {
		return nil
	}
	s.store.Delete(sessionID)

	if session.FilePath != "" {
		if err := s.fs.Remove(session.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to remove file",
				zap.String("session_id", sessionID),
				zap.String("file", session.FilePath),
				zap.Error(err))
		}
	}

	s.logger.Debug("Session cleaned up", zap.String("session_id", sessionID))
	return nil
}

// OpenFile returns the path and download name of a completed session's file
func (s *MediaService) OpenFile(sessionID string) (string, string, error) {
	session, err := s.store.Get(sessionID)
	if err != nil {
		return "", "", err
	}
	if session.Status != domain.StatusCompleted || session.FilePath == "" {
		return "", "", fmt.Errorf("%w: download %s is %s", domain.ErrNotFound, sessionID, session.Status)
	}
	if _, err := s.fs.Stat(session.FilePath); err != nil {
		return "", "", fmt.Errorf("%w: file for %s is gone", domain.ErrNotFound, sessionID)
	}
	return session.FilePath, DownloadFilename(session), nil
}

// OpenReader opens a completed session's file for streaming
func (s *MediaService) OpenReader(sessionID string) (afero.File, string, error) {
	path, name, err := s.OpenFile(sessionID)
	if err != nil {
		return nil, "", err
	}
	file, err := s.fs.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: file for %s is gone", domain.ErrNotFound, sessionID)
	}
	return file, name, nil
}

// ActiveJobs returns the number of live jobs
func (s *MediaService) ActiveJobs() int {
	return s.runner.ActiveCount()
}

// SessionCount returns the number of tracked sessions
func (s *MediaService) SessionCount() int {
	return s.store.Len()
}

// Backend returns the name of the extraction backend in use
func (s *MediaService) Backend() string {
	return s.extractor.Name()
}

// Shutdown cancels live jobs and waits for their goroutines
func (s *MediaService) Shutdown(ctx context.Context) error {
	s.runner.CancelAll()
	return s.runner.Wait(ctx)
}

const maxFilenameRunes = 100

// DownloadFilename builds a user-facing file name from the title and the
// produced file's extension
func DownloadFilename(session domain.Session) string {
	name := ""
	if session.Media != nil {
		name = sanitizeFilename(session.Media.Title)
	}
	if name == "" {
		name = "download"
		if session.Format != nil {
			name = string(session.Format.Kind)
		}
	}
	return name + filepath.Ext(session.FilePath)
}

func sanitizeFilename(title string) string {
	var b strings.Builder
	n := 0
	for _, r := range title {
		if n >= maxFilenameRunes {
			break
		}
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r), unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
		n++
	}
	return strings.Trim(strings.TrimSpace(b.String()), ".")
}
