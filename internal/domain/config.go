package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Bot       BotConfig       `mapstructure:"bot"`
	Download  DownloadConfig  `mapstructure:"download"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	History   HistoryConfig   `mapstructure:"history"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains web surface configuration
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Debug   bool   `mapstructure:"debug"`
	BaseURL string `mapstructure:"base_url"` // public URL used in chat messages
}

// BotConfig contains chat bot configuration
type BotConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Token            string        `mapstructure:"token"`
	PollTimeout      int           `mapstructure:"poll_timeout"` // seconds
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	FormatsPerPage   int           `mapstructure:"formats_per_page"`
}

// DownloadConfig contains file policy configuration
type DownloadConfig struct {
	Dir               string        `mapstructure:"dir"`
	MaxFileSize       int64         `mapstructure:"max_file_size"`       // bytes
	FileExpirySeconds int           `mapstructure:"file_expiry_seconds"` // seconds
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

// FileExpiry returns the retention period for downloaded files
func (c DownloadConfig) FileExpiry() time.Duration {
	return time.Duration(c.FileExpirySeconds) * time.Second
}

// ExtractorConfig selects and tunes the media engine
type ExtractorConfig struct {
	Backend         string `mapstructure:"backend"` // auto, ytdlp, native
	YTDLPBinary     string `mapstructure:"ytdlp_binary"`
	FFmpegBinary    string `mapstructure:"ffmpeg_binary"`
	CookieFile      string `mapstructure:"cookie_file"`
	MinVideoHeight  int    `mapstructure:"min_video_height"`
	MaxAudioFormats int    `mapstructure:"max_audio_formats"`
	AudioQuality    string `mapstructure:"audio_quality"` // mp3 bitrate, e.g. 192
}

// HistoryConfig contains the download history store configuration
type HistoryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DatabasePath string `mapstructure:"database_path"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// Backend names accepted by ExtractorConfig.Backend
const (
	BackendAuto   = "auto"
	BackendYTDLP  = "ytdlp"
	BackendNative = "native"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    5000,
			Debug:   false,
			BaseURL: "http://localhost:5000",
		},
		Bot: BotConfig{
			Enabled:          true,
			PollTimeout:      60,
			ProgressInterval: 3 * time.Second,
			FormatsPerPage:   5,
		},
		Download: DownloadConfig{
			Dir:               "./downloads",
			MaxFileSize:       50 * 1024 * 1024,
			FileExpirySeconds: 24 * 60 * 60,
			CleanupInterval:   time.Hour,
		},
		Extractor: ExtractorConfig{
			Backend:         BackendAuto,
			YTDLPBinary:     "yt-dlp",
			FFmpegBinary:    "ffmpeg",
			MinVideoHeight:  360,
			MaxAudioFormats: 2,
			AudioQuality:    "192",
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: "./data/history.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
