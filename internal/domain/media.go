package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// FormatKind distinguishes video renditions from audio-only ones
type FormatKind string

const (
	KindVideo FormatKind = "video"
	KindAudio FormatKind = "audio"
)

// ValidateKind checks if a format kind is valid
func ValidateKind(kind FormatKind) bool {
	return kind == KindVideo || kind == KindAudio
}

// FormatOption is one selectable rendition of a media resource
type FormatOption struct {
	ID      string     `json:"format_id"`
	Kind    FormatKind `json:"type"`
	Label   string     `json:"resolution"`
	Size    int64      `json:"filesize"` // 0 when unknown
	Ext     string     `json:"ext"`
	Height  int        `json:"height,omitempty"`
	Bitrate int        `json:"bitrate,omitempty"` // kbps
}

// MediaDescriptor is an immutable snapshot of a probed resource
type MediaDescriptor struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Author    string         `json:"author"`
	Duration  int            `json:"duration"` // seconds
	Views     int64          `json:"views,omitempty"`
	Thumbnail string         `json:"thumbnail"`
	Formats   []FormatOption `json:"formats"`
}

// FindFormat returns the format with the given identifier
func (m *MediaDescriptor) FindFormat(id string) (FormatOption, bool) {
	if m == nil {
		return FormatOption{}, false
	}
	for _, f := range m.Formats {
		if f.ID == id {
			return f, true
		}
	}
	return FormatOption{}, false
}

// FormatsOfKind returns the formats of one kind, preserving order
func (m *MediaDescriptor) FormatsOfKind(kind FormatKind) []FormatOption {
	if m == nil {
		return nil
	}
	var out []FormatOption
	for _, f := range m.Formats {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// NormalizeOptions controls NormalizeFormats
type NormalizeOptions struct {
	MinHeight int // video below this height is dropped
	MaxAudio  int // number of audio options kept
}

// DefaultNormalizeOptions keeps 360p and up plus the two best audio streams
var DefaultNormalizeOptions = NormalizeOptions{MinHeight: 360, MaxAudio: 2}

// NormalizeFormats dedupes candidates by (kind, label), keeping the larger
// known size, and orders video by height desc followed by the best audio
// options by bitrate desc.
func NormalizeFormats(candidates []FormatOption, opts NormalizeOptions) []FormatOption {
	type key struct {
		kind  FormatKind
		label string
	}
	best := make(map[key]int)
	var kept []FormatOption

	for _, f := range candidates {
		if !ValidateKind(f.Kind) || f.Label == "" {
			continue
		}
		if f.Kind == KindVideo && f.Height < opts.MinHeight {
			continue
		}
		k := key{f.Kind, f.Label}
		if i, ok := best[k]; ok {
			if f.Size > kept[i].Size {
				kept[i] = f
			}
			continue
		}
		best[k] = len(kept)
		kept = append(kept, f)
	}

	var video, audio []FormatOption
	for _, f := range kept {
		if f.Kind == KindVideo {
			video = append(video, f)
		} else {
			audio = append(audio, f)
		}
	}

	sort.SliceStable(video, func(i, j int) bool {
		if video[i].Height != video[j].Height {
			return video[i].Height > video[j].Height
		}
		return video[i].Size > video[j].Size
	})
	sort.SliceStable(audio, func(i, j int) bool {
		return audio[i].Bitrate > audio[j].Bitrate
	})
	if opts.MaxAudio >= 0 && len(audio) > opts.MaxAudio {
		audio = audio[:opts.MaxAudio]
	}

	return append(video, audio...)
}

var (
	videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

	youtubeHosts = map[string]bool{
		"youtube.com":              true,
		"www.youtube.com":          true,
		"m.youtube.com":            true,
		"music.youtube.com":        true,
		"youtube-nocookie.com":     true,
		"www.youtube-nocookie.com": true,
	}
)

// ParseVideoURL validates a YouTube link and returns its video id
func ParseVideoURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty URL", ErrInvalidInput)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	var id string
	switch {
	case host == "youtu.be" || host == "www.youtu.be":
		id = firstSegment(u.Path)
	case youtubeHosts[host]:
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		switch segments[0] {
		case "watch":
			id = u.Query().Get("v")
		case "shorts", "embed", "live", "v":
			if len(segments) > 1 {
				id = segments[1]
			}
		}
	default:
		return "", fmt.Errorf("%w: not a YouTube link", ErrInvalidInput)
	}

	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: missing or malformed video id", ErrInvalidInput)
	}
	return id, nil
}

func firstSegment(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.Index(path, "/"); i >= 0 {
		return path[:i]
	}
	return path
}
