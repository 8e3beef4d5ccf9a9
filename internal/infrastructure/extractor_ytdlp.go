package infrastructure

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// progressTemplate makes yt-dlp print one machine-readable line per tick.
// Unknown fields are printed as NA.
const progressTemplate = "download:[progress] %(progress.downloaded_bytes)s %(progress.total_bytes)s %(progress.total_bytes_estimate)s %(progress.eta)s"

// outputGrace bounds how long a killed yt-dlp's children (ffmpeg) may keep
// its output pipes open
const outputGrace = 2 * time.Second

var progressLineRegex = regexp.MustCompile(`^\[progress\]\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s*$`)

// YTDLPExtractor drives the yt-dlp binary
type YTDLPExtractor struct {
	binary     string
	cookieFile string
	dir        string
	fs         afero.Fs
	transcoder *Transcoder
	normalize  domain.NormalizeOptions
	waitDelay  time.Duration
	logger     *zap.Logger
}

// NewYTDLPExtractor creates an extractor writing into dir
func NewYTDLPExtractor(cfg domain.ExtractorConfig, dir string, fs afero.Fs, transcoder *Transcoder, logger *zap.Logger) *YTDLPExtractor {
	return &YTDLPExtractor{
		binary:     cfg.YTDLPBinary,
		cookieFile: cfg.CookieFile,
		dir:        dir,
		fs:         fs,
		transcoder: transcoder,
		normalize: domain.NormalizeOptions{
			MinHeight: cfg.MinVideoHeight,
			MaxAudio:  cfg.MaxAudioFormats,
		},
		waitDelay: outputGrace,
		logger:    logger,
	}
}

// Name returns the backend name
func (e *YTDLPExtractor) Name() string {
	return domain.BackendYTDLP
}

// Probe runs yt-dlp in JSON mode and converts the result
func (e *YTDLPExtractor) Probe(ctx context.Context, url string) (*domain.MediaDescriptor, error) {
	if _, err := domain.ParseVideoURL(url); err != nil {
		return nil, err
	}

	args := append(e.commonArgs(), "-J", "--no-warnings", url)
	e.logger.Debug("Running yt-dlp probe", zap.String("command", ShellEscapeCommand(e.binary, args...)))

	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.WaitDelay = e.waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		tail := newLastLines(5)
		for _, line := range strings.Split(stderr.String(), "\n") {
			tail.add(line)
		}
		reason := tail.String()
		if reason == "" {
			reason = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrExtractionFailure, reason)
	}

	return parseProbeOutput(output, e.normalize)
}

// Fetch downloads the selected format and returns the produced file
func (e *YTDLPExtractor) Fetch(ctx context.Context, req domain.FetchRequest, onProgress domain.ProgressFunc) (string, error) {
	base := newOutputBase(e.dir, req.Format.Kind)
	args := e.fetchArgs(req, base)

	e.logger.Info("Running yt-dlp",
		zap.String("format_id", req.Format.ID),
		zap.String("command", ShellEscapeCommand(e.binary, args...)))

	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.WaitDelay = e.waitDelay
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	// Wait owns the pipes so a lingering child cannot hold the readers open
	// past WaitDelay
	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		stdoutW.Close()
		stderrW.Close()
		waitErr <- err
	}()

	// progress may arrive on either stream depending on the yt-dlp version
	lines := make(chan string)
	var readers sync.WaitGroup
	for _, r := range []io.Reader{stdoutR, stderrR} {
		readers.Add(1)
		go func(r io.Reader) {
			defer readers.Done()
			scanner := bufio.NewScanner(r)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
			_, _ = io.Copy(io.Discard, r)
		}(r)
	}
	go func() {
		readers.Wait()
		close(lines)
	}()

	var finalPath string
	tail := newLastLines(10)
	for line := range lines {
		if downloaded, total, eta, ok := parseProgressLine(line); ok {
			if onProgress != nil {
				onProgress(downloaded, total, eta)
			}
			continue
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, base+".") {
			finalPath = trimmed
			continue
		}
		tail.add(line)
	}

	if err := <-waitErr; err != nil {
		removeOutputs(e.fs, base)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		reason := tail.String()
		if reason == "" {
			reason = err.Error()
		}
		return "", fmt.Errorf("%w: yt-dlp failed: %s", domain.ErrDownloadFailure, reason)
	}

	if finalPath == "" {
		var err error
		finalPath, err = findOutput(e.fs, base)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrDownloadFailure, err)
		}
	}

	e.logger.Info("yt-dlp finished", zap.String("file", finalPath))
	return finalPath, nil
}

func (e *YTDLPExtractor) commonArgs() []string {
	args := []string{"--no-playlist"}
	if e.cookieFile != "" && fileExists(e.fs, e.cookieFile) {
		args = append(args, "--cookies", e.cookieFile)
	}
	return args
}

func (e *YTDLPExtractor) fetchArgs(req domain.FetchRequest, base string) []string {
	args := append(e.commonArgs(),
		"-f", req.Format.ID,
		"--newline",
		"--progress",
		"--progress-template", progressTemplate,
		"--print", "after_move:filepath",
		"-o", base+".%(ext)s",
	)

	if req.Format.Kind == domain.KindAudio && e.transcoder.Available() {
		args = append(args,
			"-x",
			"--audio-format", "mp3",
			"--audio-quality", e.transcoder.Quality()+"K",
			"--ffmpeg-location", e.transcoder.Binary(),
		)
	}

	return append(args, req.URL)
}

func fileExists(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && !info.IsDir()
}

// parseProgressLine parses a line printed through progressTemplate.
// total falls back to the estimate when the exact size is unknown.
func parseProgressLine(line string) (downloaded, total int64, eta time.Duration, ok bool) {
	m := progressLineRegex.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, 0, 0, false
	}

	downloaded = parseNumber(m[1])
	total = parseNumber(m[2])
	if total == 0 {
		total = parseNumber(m[3])
	}
	eta = time.Duration(parseNumber(m[4])) * time.Second
	return downloaded, total, eta, true
}

func parseNumber(s string) int64 {
	if s == "NA" || s == "None" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsNaN(f) {
		return 0
	}
	return int64(f)
}

// ytdlpInfo is the subset of yt-dlp's -J output we use
type ytdlpInfo struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Uploader  string        `json:"uploader"`
	Channel   string        `json:"channel"`
	Duration  float64       `json:"duration"`
	ViewCount int64         `json:"view_count"`
	Thumbnail string        `json:"thumbnail"`
	Formats   []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Height         int     `json:"height"`
	ABR            float64 `json:"abr"`
	TBR            float64 `json:"tbr"`
	FileSize       float64 `json:"filesize"`
	FileSizeApprox float64 `json:"filesize_approx"`
}

func parseProbeOutput(data []byte, opts domain.NormalizeOptions) (*domain.MediaDescriptor, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: invalid yt-dlp output: %v", domain.ErrExtractionFailure, err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%w: yt-dlp returned no video id", domain.ErrExtractionFailure)
	}

	author := info.Uploader
	if author == "" {
		author = info.Channel
	}

	candidates := make([]domain.FormatOption, 0, len(info.Formats))
	for _, f := range info.Formats {
		if option, ok := convertYTDLPFormat(f); ok {
			candidates = append(candidates, option)
		}
	}

	return &domain.MediaDescriptor{
		ID:        info.ID,
		Title:     info.Title,
		Author:    author,
		Duration:  int(info.Duration),
		Views:     info.ViewCount,
		Thumbnail: info.Thumbnail,
		Formats:   domain.NormalizeFormats(candidates, opts),
	}, nil
}

func convertYTDLPFormat(f ytdlpFormat) (domain.FormatOption, bool) {
	if f.FormatID == "" || f.Ext == "mhtml" {
		return domain.FormatOption{}, false
	}

	size := int64(f.FileSize)
	if size == 0 {
		size = int64(f.FileSizeApprox)
	}

	hasVideo := f.VCodec != "none"
	hasAudio := f.ACodec != "none"

	switch {
	case hasVideo && hasAudio && f.Height > 0:
		return domain.FormatOption{
			ID:     f.FormatID,
			Kind:   domain.KindVideo,
			Label:  fmt.Sprintf("%dp", f.Height),
			Size:   size,
			Ext:    f.Ext,
			Height: f.Height,
		}, true
	case !hasVideo && hasAudio:
		abr := f.ABR
		if abr == 0 {
			abr = f.TBR
		}
		kbps := int(math.Round(abr))
		if kbps <= 0 {
			return domain.FormatOption{}, false
		}
		return domain.FormatOption{
			ID:      f.FormatID,
			Kind:    domain.KindAudio,
			Label:   fmt.Sprintf("%dkbps", kbps),
			Size:    size,
			Ext:     f.Ext,
			Bitrate: kbps,
		}, true
	}
	return domain.FormatOption{}, false
}

// YTDLPVersion returns the version of the binary, or false when it cannot
// be run
func YTDLPVersion(binary string) (string, bool) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", false
	}
	out, err := exec.Command(path, "--version").Output()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}
