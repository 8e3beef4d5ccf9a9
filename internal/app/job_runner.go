package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// DeliveryFunc hands a completed session's file to its surface
type DeliveryFunc func(ctx context.Context, session domain.Session) error

// JobHooks are the surface callbacks attached to one job. Both are optional.
type JobHooks struct {
	Progress ProgressSink
	Deliver  DeliveryFunc
}

// RunnerConfig holds the file policy enforced by the job runner
type RunnerConfig struct {
	MaxFileSize      int64
	ProgressInterval time.Duration
}

// JobRunner executes fetches in the background, at most one per session
type JobRunner struct {
	store     *SessionStore
	extractor domain.Extractor
	history   domain.HistoryRepository
	fs        afero.Fs
	config    RunnerConfig
	logger    *zap.Logger

	mu     sync.Mutex
	active map[string]*job
	wg     sync.WaitGroup
}

type job struct {
	sessionID string
	url       string
	format    domain.FormatOption
	hooks     JobHooks
	cancel    context.CancelFunc
	cancelled atomic.Bool

	mu             sync.Mutex
	lastDownloaded int64
}

// NewJobRunner creates a job runner. history may be nil.
func NewJobRunner(
	store *SessionStore,
	extractor domain.Extractor,
	history domain.HistoryRepository,
	fs afero.Fs,
	config RunnerConfig,
	logger *zap.Logger,
) *JobRunner {
	return &JobRunner{
		store:     store,
		extractor: extractor,
		history:   history,
		fs:        fs,
		config:    config,
		logger:    logger,
		active:    make(map[string]*job),
	}
}

// Start moves an idle session to preparing and launches its fetch in the
// background. It returns as soon as the job is registered.
func (r *JobRunner) Start(ctx context.Context, sessionID, formatID string, hooks JobHooks) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, live := r.active[sessionID]; live {
		return fmt.Errorf("%w: session %s", domain.ErrConflict, sessionID)
	}

	var (
		format domain.FormatOption
		url    string
	)
	err := r.store.Update(sessionID, func(s *domain.Session) error {
		if s.Status.IsLive() {
			return fmt.Errorf("%w: session %s is %s", domain.ErrConflict, s.ID, s.Status)
		}
		if s.Status.IsTerminal() {
			return fmt.Errorf("%w: session %s already %s", domain.ErrConflict, s.ID, s.Status)
		}
		f, ok := s.Media.FindFormat(formatID)
		if !ok {
			return fmt.Errorf("%w: unknown format %q", domain.ErrInvalidInput, formatID)
		}
		format = f
		url = s.URL
		return s.MarkPreparing(f)
	})
	if err != nil {
		return err
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j := &job{
		sessionID: sessionID,
		url:       url,
		format:    format,
		hooks:     hooks,
		cancel:    cancel,
	}
	r.active[sessionID] = j

	r.logger.Info("Starting download",
		zap.String("session_id", sessionID),
		zap.String("format_id", format.ID),
		zap.String("kind", string(format.Kind)),
		zap.String("backend", r.extractor.Name()))

	r.wg.Add(1)
	go r.run(jobCtx, j)

	return nil
}

// Cancel stops tracking the session's job and marks the session cancelled.
// The transfer itself is interrupted on a best-effort basis; whatever file it
// still produces is deleted. Unknown sessions are a no-op.
func (r *JobRunner) Cancel(sessionID string) error {
	r.mu.Lock()
	j := r.active[sessionID]
	delete(r.active, sessionID)
	r.mu.Unlock()

	if j != nil {
		j.cancelled.Store(true)
		j.cancel()
	}

	err := r.store.Update(sessionID, func(s *domain.Session) error {
		return s.MarkCancelled()
	})
	switch {
	case err == nil:
		r.logger.Info("Download cancelled", zap.String("session_id", sessionID))
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidTransition):
	default:
		return err
	}
	return nil
}

// CancelAll cancels every live job
func (r *JobRunner) CancelAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.Cancel(id)
	}
}

// IsActive reports whether the session has a live job
func (r *JobRunner) IsActive(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[sessionID]
	return ok
}

// ActiveCount returns the number of live jobs
func (r *JobRunner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Wait blocks until all job goroutines have returned or ctx is done
func (r *JobRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *JobRunner) run(ctx context.Context, j *job) {
	defer r.wg.Done()
	defer j.cancel()

	log := r.logger.With(zap.String("session_id", j.sessionID))
	reporter := NewProgressReporter(j.hooks.Progress, r.config.ProgressInterval, log)
	reporter.Tick(ProgressUpdate{SessionID: j.sessionID, Status: domain.StatusPreparing})

	path, err := r.extractor.Fetch(ctx, domain.FetchRequest{URL: j.url, Format: j.format},
		func(downloaded, total int64, eta time.Duration) {
			r.onProgress(j, reporter, downloaded, total, eta)
		})

	if j.cancelled.Load() {
		r.discard(log, path)
		r.finish(j, reporter, ProgressUpdate{SessionID: j.sessionID, Status: domain.StatusCancelled})
		return
	}

	if err != nil {
		r.discard(log, path)
		if !errors.Is(err, domain.ErrDownloadFailure) {
			err = fmt.Errorf("%w: %v", domain.ErrDownloadFailure, err)
		}
		r.fail(j, reporter, domain.FailureDownload, err)
		return
	}

	info, err := r.fs.Stat(path)
	if err != nil || info.IsDir() {
		r.fail(j, reporter, domain.FailureDownload,
			fmt.Errorf("%w: output file %s not found", domain.ErrDownloadFailure, path))
		return
	}

	if size := info.Size(); size > r.config.MaxFileSize {
		r.discard(log, path)
		r.fail(j, reporter, domain.FailureSizeLimit,
			&domain.SizeLimitError{Size: size, Limit: r.config.MaxFileSize})
		return
	}

	// a Cancel racing with completion wins as long as it flagged the job
	// before the session is marked completed
	cancelled := false
	err = r.store.Update(j.sessionID, func(s *domain.Session) error {
		if j.cancelled.Load() {
			cancelled = true
			return s.MarkCancelled()
		}
		return s.MarkCompleted(path, info.Size())
	})
	if err != nil || cancelled {
		// cancelled or cleaned up while the transfer was finishing
		r.discard(log, path)
		r.finish(j, reporter, ProgressUpdate{SessionID: j.sessionID, Status: domain.StatusCancelled})
		return
	}

	log.Info("Download completed",
		zap.String("file", path),
		zap.Int64("size", info.Size()))

	r.finish(j, reporter, ProgressUpdate{
		SessionID:  j.sessionID,
		Status:     domain.StatusCompleted,
		Downloaded: info.Size(),
		Total:      info.Size(),
	})

	if j.hooks.Deliver == nil {
		return
	}
	session, err := r.store.Get(j.sessionID)
	if err != nil {
		return
	}
	if err := j.hooks.Deliver(ctx, session); err != nil {
		log.Warn("Delivery failed", zap.Error(err))
	}
}

func (r *JobRunner) onProgress(j *job, reporter *ProgressReporter, downloaded, total int64, eta time.Duration) {
	if j.cancelled.Load() {
		return
	}

	j.mu.Lock()
	if downloaded < j.lastDownloaded {
		j.mu.Unlock()
		return
	}
	j.lastDownloaded = downloaded
	j.mu.Unlock()

	err := r.store.Update(j.sessionID, func(s *domain.Session) error {
		return s.ApplyProgress(downloaded, total, int(eta.Seconds()))
	})
	if err != nil {
		return
	}

	reporter.Tick(ProgressUpdate{
		SessionID:  j.sessionID,
		Status:     domain.StatusDownloading,
		Downloaded: downloaded,
		Total:      total,
		ETA:        eta,
	})
}

func (r *JobRunner) fail(j *job, reporter *ProgressReporter, kind domain.FailureKind, cause error) {
	r.logger.Error("Download failed",
		zap.String("session_id", j.sessionID),
		zap.String("reason", string(kind)),
		zap.Error(cause))

	err := r.store.Update(j.sessionID, func(s *domain.Session) error {
		return s.MarkFailed(kind, cause)
	})
	if err != nil {
		r.finish(j, reporter, ProgressUpdate{SessionID: j.sessionID, Status: domain.StatusCancelled})
		return
	}
	r.finish(j, reporter, ProgressUpdate{SessionID: j.sessionID, Status: domain.StatusFailed, Err: cause})
}

// finish delivers the terminal update, releases the job slot and records history
func (r *JobRunner) finish(j *job, reporter *ProgressReporter, final ProgressUpdate) {
	reporter.Finish(final)

	r.mu.Lock()
	if r.active[j.sessionID] == j {
		delete(r.active, j.sessionID)
	}
	r.mu.Unlock()

	r.record(j, final.Status)
}

func (r *JobRunner) record(j *job, status domain.DownloadStatus) {
	if r.history == nil {
		return
	}

	session, err := r.store.Get(j.sessionID)
	if err != nil {
		session = domain.Session{ID: j.sessionID, URL: j.url, Format: &j.format}
	}
	session.Status = status

	if err := r.history.Record(domain.NewDownloadRecord(session, r.extractor.Name())); err != nil {
		r.logger.Warn("Failed to record download history",
			zap.String("session_id", j.sessionID),
			zap.Error(err))
	}
}

// discard removes a file no session will claim
func (r *JobRunner) discard(log *zap.Logger, path string) {
	if path == "" {
		return
	}
	if err := r.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove file", zap.String("file", path), zap.Error(err))
	}
}
