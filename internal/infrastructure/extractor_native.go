package infrastructure

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// progressStep is how many bytes the native transfer copies between
// progress callbacks
const progressStep = 256 << 10

var qualityLabelRegex = regexp.MustCompile(`^(\d+)p`)

// NativeExtractor talks to YouTube directly through kkdai/youtube. It
// only offers streams that already carry both audio and video.
type NativeExtractor struct {
	client     *youtube.Client
	dir        string
	fs         afero.Fs
	transcoder *Transcoder
	normalize  domain.NormalizeOptions
	logger     *zap.Logger
}

// NewNativeExtractor creates a new in-process extractor writing into dir
func NewNativeExtractor(cfg domain.ExtractorConfig, dir string, fs afero.Fs, transcoder *Transcoder, logger *zap.Logger) *NativeExtractor {
	return &NativeExtractor{
		client:     &youtube.Client{},
		dir:        dir,
		fs:         fs,
		transcoder: transcoder,
		normalize: domain.NormalizeOptions{
			MinHeight: cfg.MinVideoHeight,
			MaxAudio:  cfg.MaxAudioFormats,
		},
		logger: logger,
	}
}

// Name returns the backend name
func (e *NativeExtractor) Name() string {
	return domain.BackendNative
}

// Probe fetches the video metadata
func (e *NativeExtractor) Probe(ctx context.Context, url string) (*domain.MediaDescriptor, error) {
	if _, err := domain.ParseVideoURL(url); err != nil {
		return nil, err
	}

	video, err := e.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtractionFailure, err)
	}

	return convertVideo(video, e.normalize), nil
}

// Fetch streams the chosen itag to disk, converting audio to mp3 when
// ffmpeg is available
func (e *NativeExtractor) Fetch(ctx context.Context, req domain.FetchRequest, onProgress domain.ProgressFunc) (string, error) {
	video, err := e.client.GetVideoContext(ctx, req.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDownloadFailure, err)
	}

	format, err := findItag(video, req.Format.ID)
	if err != nil {
		return "", err
	}

	stream, size, err := e.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDownloadFailure, err)
	}
	defer stream.Close()

	base := newOutputBase(e.dir, req.Format.Kind)
	path := base + "." + extFromMime(format.MimeType)

	e.logger.Info("Streaming format",
		zap.Int("itag", format.ItagNo),
		zap.Int64("size", size),
		zap.String("file", path))

	if err := e.copyToFile(stream, path, size, onProgress); err != nil {
		removeOutputs(e.fs, base)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", domain.ErrDownloadFailure, err)
	}

	if req.Format.Kind != domain.KindAudio || !e.transcoder.Available() || strings.HasSuffix(path, ".mp3") {
		return path, nil
	}

	mp3 := base + ".mp3"
	if err := e.transcoder.ToMP3(ctx, path, mp3); err != nil {
		removeOutputs(e.fs, base)
		return "", fmt.Errorf("%w: %v", domain.ErrDownloadFailure, err)
	}
	if err := e.fs.Remove(path); err != nil {
		e.logger.Warn("Failed to remove source after transcoding", zap.String("file", path), zap.Error(err))
	}
	return mp3, nil
}

// findItag resolves a format id against the formats the video offers now
func findItag(video *youtube.Video, formatID string) (*youtube.Format, error) {
	itag, err := strconv.Atoi(formatID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid format id %q", domain.ErrDownloadFailure, formatID)
	}
	formats := video.Formats.Itag(itag)
	if len(formats) == 0 {
		return nil, fmt.Errorf("%w: format %s is no longer offered", domain.ErrDownloadFailure, formatID)
	}
	return &formats[0], nil
}

func (e *NativeExtractor) copyToFile(src io.Reader, path string, size int64, onProgress domain.ProgressFunc) error {
	file, err := e.fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	counter := &progressCounter{total: size, onProgress: onProgress, started: time.Now()}
	_, copyErr := io.Copy(file, io.TeeReader(src, counter))
	closeErr := file.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}
	counter.flush()
	return nil
}

// progressCounter reports transfer progress while a stream is copied
type progressCounter struct {
	total      int64
	written    int64
	reported   int64
	started    time.Time
	onProgress domain.ProgressFunc
}

func (c *progressCounter) Write(p []byte) (int, error) {
	c.written += int64(len(p))
	if c.written-c.reported >= progressStep {
		c.flush()
	}
	return len(p), nil
}

func (c *progressCounter) flush() {
	if c.onProgress == nil || c.written == c.reported {
		return
	}
	c.reported = c.written
	c.onProgress(c.written, c.total, c.eta())
}

func (c *progressCounter) eta() time.Duration {
	elapsed := time.Since(c.started)
	if c.total <= 0 || c.written <= 0 || elapsed <= 0 {
		return 0
	}
	remaining := c.total - c.written
	if remaining <= 0 {
		return 0
	}
	rate := float64(c.written) / elapsed.Seconds()
	return time.Duration(float64(remaining)/rate) * time.Second
}

func convertVideo(video *youtube.Video, opts domain.NormalizeOptions) *domain.MediaDescriptor {
	candidates := make([]domain.FormatOption, 0, len(video.Formats))
	for _, f := range video.Formats {
		if option, ok := convertNativeFormat(f); ok {
			candidates = append(candidates, option)
		}
	}

	return &domain.MediaDescriptor{
		ID:        video.ID,
		Title:     video.Title,
		Author:    video.Author,
		Duration:  int(video.Duration.Seconds()),
		Views:     int64(video.Views),
		Thumbnail: largestThumbnail(video.Thumbnails),
		Formats:   domain.NormalizeFormats(candidates, opts),
	}
}

func convertNativeFormat(f youtube.Format) (domain.FormatOption, bool) {
	id := strconv.Itoa(f.ItagNo)
	ext := extFromMime(f.MimeType)

	switch {
	case strings.HasPrefix(f.MimeType, "video/") && f.AudioChannels > 0:
		height := f.Height
		if m := qualityLabelRegex.FindStringSubmatch(f.QualityLabel); m != nil {
			height, _ = strconv.Atoi(m[1])
		}
		if height <= 0 {
			return domain.FormatOption{}, false
		}
		return domain.FormatOption{
			ID:     id,
			Kind:   domain.KindVideo,
			Label:  fmt.Sprintf("%dp", height),
			Size:   f.ContentLength,
			Ext:    ext,
			Height: height,
		}, true
	case strings.HasPrefix(f.MimeType, "audio/"):
		bitrate := f.AverageBitrate
		if bitrate == 0 {
			bitrate = f.Bitrate
		}
		kbps := (bitrate + 500) / 1000
		if kbps <= 0 {
			return domain.FormatOption{}, false
		}
		return domain.FormatOption{
			ID:      id,
			Kind:    domain.KindAudio,
			Label:   fmt.Sprintf("%dkbps", kbps),
			Size:    f.ContentLength,
			Ext:     ext,
			Bitrate: kbps,
		}, true
	}
	return domain.FormatOption{}, false
}

// extFromMime maps e.g. `audio/mp4; codecs="mp4a.40.2"` to m4a
func extFromMime(mime string) string {
	media := strings.TrimSpace(strings.SplitN(mime, ";", 2)[0])
	switch media {
	case "video/mp4":
		return "mp4"
	case "audio/mp4":
		return "m4a"
	case "video/webm", "audio/webm":
		return "webm"
	case "video/3gpp":
		return "3gp"
	}
	if i := strings.LastIndex(media, "/"); i >= 0 && i < len(media)-1 {
		return media[i+1:]
	}
	return "bin"
}

func largestThumbnail(thumbnails youtube.Thumbnails) string {
	best := ""
	var bestArea uint
	for _, t := range thumbnails {
		if area := t.Width * t.Height; best == "" || area > bestArea {
			best, bestArea = t.URL, area
		}
	}
	return best
}
