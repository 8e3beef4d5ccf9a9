package infrastructure

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

func TestConvertVideo(t *testing.T) {
	video := &youtube.Video{
		ID:       "abc123",
		Title:    "Test video",
		Author:   "Tester",
		Duration: 3*time.Minute + 32*time.Second,
		Views:    42,
		Thumbnails: youtube.Thumbnails{
			{URL: "https://i.ytimg.com/small.jpg", Width: 120, Height: 90},
			{URL: "https://i.ytimg.com/large.jpg", Width: 1280, Height: 720},
			{URL: "https://i.ytimg.com/medium.jpg", Width: 480, Height: 360},
		},
		Formats: youtube.FormatList{
			{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, QualityLabel: "360p", Height: 360, AudioChannels: 2, ContentLength: 9000},
			{ItagNo: 22, MimeType: `video/mp4; codecs="avc1.64001F, mp4a.40.2"`, QualityLabel: "720p60", Height: 720, AudioChannels: 2},
			{ItagNo: 137, MimeType: `video/mp4; codecs="avc1.640028"`, QualityLabel: "1080p", Height: 1080},
			{ItagNo: 17, MimeType: `video/3gpp; codecs="mp4v.20.3, mp4a.40.2"`, QualityLabel: "144p", Height: 144, AudioChannels: 1},
			{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AverageBitrate: 129500, Bitrate: 130000, AudioChannels: 2, ContentLength: 3400},
			{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, Bitrate: 160000, AudioChannels: 2},
			{ItagNo: 249, MimeType: `audio/webm; codecs="opus"`, AverageBitrate: 50000, AudioChannels: 2},
		},
	}

	media := convertVideo(video, domain.DefaultNormalizeOptions)

	assert.Equal(t, "abc123", media.ID)
	assert.Equal(t, 212, media.Duration)
	assert.Equal(t, int64(42), media.Views)
	assert.Equal(t, "https://i.ytimg.com/large.jpg", media.Thumbnail)

	require.Len(t, media.Formats, 4)
	assert.Equal(t, domain.FormatOption{ID: "22", Kind: domain.KindVideo, Label: "720p", Ext: "mp4", Height: 720}, media.Formats[0])
	assert.Equal(t, domain.FormatOption{ID: "18", Kind: domain.KindVideo, Label: "360p", Ext: "mp4", Height: 360, Size: 9000}, media.Formats[1])
	assert.Equal(t, domain.FormatOption{ID: "251", Kind: domain.KindAudio, Label: "160kbps", Ext: "webm", Bitrate: 160}, media.Formats[2])
	assert.Equal(t, domain.FormatOption{ID: "140", Kind: domain.KindAudio, Label: "130kbps", Ext: "m4a", Bitrate: 130, Size: 3400}, media.Formats[3])
}

func TestFindItag(t *testing.T) {
	video := &youtube.Video{
		Formats: youtube.FormatList{
			{ItagNo: 18, MimeType: "video/mp4", AudioChannels: 2},
			{ItagNo: 140, MimeType: "audio/mp4", AudioChannels: 2},
		},
	}

	tests := []struct {
		name     string
		formatID string
		wantItag int
		wantErr  bool
	}{
		{"video", "18", 18, false},
		{"audio", "140", 140, false},
		{"not offered", "22", 0, true},
		{"not a number", "hls-720", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, err := findItag(video, tt.formatID)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrDownloadFailure)
				assert.Nil(t, format)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantItag, format.ItagNo)
		})
	}
}

func TestExtFromMime(t *testing.T) {
	tests := map[string]string{
		`video/mp4; codecs="avc1"`:  "mp4",
		`audio/mp4; codecs="mp4a"`:  "m4a",
		`audio/webm; codecs="opus"`: "webm",
		"video/3gpp":                "3gp",
		"video/x-flv":               "x-flv",
		"":                          "bin",
	}
	for mime, want := range tests {
		assert.Equal(t, want, extFromMime(mime), mime)
	}
}

func TestNativeExtractor_CopyReportsProgress(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := NewNativeExtractor(domain.DefaultConfig().Extractor, "/downloads", fs, &Transcoder{}, zap.NewNop())

	payload := bytes.Repeat([]byte("x"), progressStep*2+100)
	var reports []int64
	err := e.copyToFile(bytes.NewReader(payload), "/downloads/video_x.mp4", int64(len(payload)),
		func(downloaded, total int64, _ time.Duration) {
			assert.Equal(t, int64(len(payload)), total)
			reports = append(reports, downloaded)
		})
	require.NoError(t, err)

	require.NotEmpty(t, reports)
	assert.Equal(t, int64(len(payload)), reports[len(reports)-1])
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i], reports[i-1])
	}

	info, err := fs.Stat("/downloads/video_x.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), info.Size())
}

func TestNativeExtractor_ProbeRejectsForeignURL(t *testing.T) {
	e := NewNativeExtractor(domain.DefaultConfig().Extractor, "/downloads", afero.NewMemMapFs(), &Transcoder{}, zap.NewNop())
	_, err := e.Probe(context.Background(), "https://vimeo.com/123")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
