package infrastructure

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Transcoder wraps the ffmpeg binary used for audio normalization
type Transcoder struct {
	binary    string
	quality   string // mp3 bitrate in kbps
	available bool
	logger    *zap.Logger
}

// NewTranscoder detects ffmpeg once. A missing binary is not an error:
// audio is then delivered in its native container.
func NewTranscoder(binary, quality string, logger *zap.Logger) *Transcoder {
	t := &Transcoder{binary: binary, quality: quality, logger: logger}
	if quality == "" {
		t.quality = "192"
	}

	path, err := exec.LookPath(binary)
	if err != nil {
		logger.Warn("ffmpeg not found, audio will keep its native container", zap.String("binary", binary))
		return t
	}
	if err := exec.Command(path, "-version").Run(); err != nil {
		logger.Warn("ffmpeg is not usable", zap.String("binary", path), zap.Error(err))
		return t
	}

	t.binary = path
	t.available = true
	logger.Info("ffmpeg found", zap.String("binary", path))
	return t
}

// Available reports whether ffmpeg can be used
func (t *Transcoder) Available() bool {
	return t != nil && t.available
}

// Binary returns the resolved ffmpeg path
func (t *Transcoder) Binary() string {
	return t.binary
}

// Quality returns the mp3 bitrate in kbps
func (t *Transcoder) Quality() string {
	return t.quality
}

// ToMP3 converts in to an mp3 file at out
func (t *Transcoder) ToMP3(ctx context.Context, in, out string) error {
	if !t.Available() {
		return fmt.Errorf("ffmpeg not available")
	}

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", in,
		"-vn",
		"-codec:a", "libmp3lame",
		"-b:a", t.quality + "k",
		out,
	}
	t.logger.Debug("Running ffmpeg", zap.String("command", ShellEscapeCommand(t.binary, args...)))

	output, err := exec.CommandContext(ctx, t.binary, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
