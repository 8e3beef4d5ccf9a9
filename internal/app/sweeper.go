package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// RetentionSweeper periodically deletes downloaded files older than the
// configured expiry. It does not look at sessions.
type RetentionSweeper struct {
	fs       afero.Fs
	dir      string
	expiry   time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	workerWg sync.WaitGroup
}

// NewRetentionSweeper creates a new sweeper for dir
func NewRetentionSweeper(fs afero.Fs, dir string, expiry, interval time.Duration, logger *zap.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		fs:       fs,
		dir:      dir,
		expiry:   expiry,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start runs one sweep immediately and then one per interval
func (rs *RetentionSweeper) Start(ctx context.Context) error {
	rs.mu.Lock()
	if rs.running {
		rs.mu.Unlock()
		return fmt.Errorf("retention sweeper already running")
	}
	rs.running = true
	rs.stopChan = make(chan struct{})
	rs.mu.Unlock()

	rs.logger.Info("Retention sweeper started",
		zap.String("dir", rs.dir),
		zap.Duration("expiry", rs.expiry),
		zap.Duration("interval", rs.interval))

	rs.workerWg.Add(1)
	go rs.loop(ctx)

	return nil
}

// Stop stops the sweeper and waits for the loop to exit
func (rs *RetentionSweeper) Stop() error {
	rs.mu.Lock()
	if !rs.running {
		rs.mu.Unlock()
		return fmt.Errorf("retention sweeper not running")
	}
	rs.running = false
	close(rs.stopChan)
	rs.mu.Unlock()

	rs.workerWg.Wait()
	rs.logger.Info("Retention sweeper stopped")
	return nil
}

// IsRunning returns whether the sweeper loop is active
func (rs *RetentionSweeper) IsRunning() bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.running
}

func (rs *RetentionSweeper) loop(ctx context.Context) {
	defer rs.workerWg.Done()

	rs.sweepAndLog()

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rs.mu.Lock()
			rs.running = false
			rs.mu.Unlock()
			return
		case <-rs.stopChan:
			return
		case <-ticker.C:
			rs.sweepAndLog()
		}
	}
}

func (rs *RetentionSweeper) sweepAndLog() {
	removed, err := rs.Sweep()
	if err != nil {
		rs.logger.Error("Retention sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		rs.logger.Info("Removed expired files", zap.Int("count", removed))
	}
}

// Sweep deletes regular files whose modification time is older than the
// expiry. Files that disappear between listing and removal are skipped.
func (rs *RetentionSweeper) Sweep() (int, error) {
	entries, err := afero.ReadDir(rs.fs, rs.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list download directory: %w", err)
	}

	cutoff := rs.now().Add(-rs.expiry)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !entry.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(rs.dir, entry.Name())
		if err := rs.fs.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			rs.logger.Warn("Failed to remove expired file", zap.String("file", path), zap.Error(err))
			continue
		}
		rs.logger.Debug("Removed expired file",
			zap.String("file", path),
			zap.Duration("age", rs.now().Sub(entry.ModTime())))
		removed++
	}

	return removed, nil
}
