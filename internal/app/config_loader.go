package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// renderDownloadDir is the writable location on Render instances
const renderDownloadDir = "/tmp/youtube-downloader"

// legacyEnv maps config keys onto the plain environment names used by
// existing deployments. Earlier names take precedence.
var legacyEnv = map[string][]string{
	"server.host":                  {"WEB_HOST"},
	"server.port":                  {"PORT", "WEB_PORT"},
	"server.debug":                 {"DEBUG"},
	"server.base_url":              {"BASE_URL"},
	"bot.enabled":                  {"BOT_ENABLED"},
	"bot.token":                    {"BOT_TOKEN"},
	"download.dir":                 {"DOWNLOAD_PATH"},
	"download.max_file_size":       {"MAX_FILE_SIZE"},
	"download.file_expiry_seconds": {"FILE_EXPIRY"},
	"download.cleanup_interval":    {"CLEANUP_INTERVAL"},
}

// LoadConfig loads configuration from .env, an optional YAML file and the environment
func LoadConfig(configPath string) (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.ytfetch")
		v.AddConfigPath("/etc/ytfetch")
	}

	v.SetEnvPrefix("YTFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, config)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if v.GetBool("render") {
		applyRender(config, v.GetString("render_service_name"))
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(config.Download.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	return config, nil
}

// secondsToDurationHook reads unit-less numbers as seconds for duration
// fields, so CLEANUP_INTERVAL=3600 matches FILE_EXPIRY. Values with a unit
// ("30m") fall through to the standard duration hook.
func secondsToDurationHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) || from == to {
		return data, nil
	}

	switch value := data.(type) {
	case string:
		trimmed := strings.TrimSpace(value)
		seconds, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return data, nil
		}
		return time.Duration(seconds) * time.Second, nil
	case int:
		return time.Duration(value) * time.Second, nil
	case int64:
		return time.Duration(value) * time.Second, nil
	case float64:
		return time.Duration(value * float64(time.Second)), nil
	}
	return data, nil
}

// setDefaults registers every key so Unmarshal sees environment overrides
func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.debug", c.Server.Debug)
	v.SetDefault("server.base_url", c.Server.BaseURL)

	v.SetDefault("bot.enabled", c.Bot.Enabled)
	v.SetDefault("bot.token", c.Bot.Token)
	v.SetDefault("bot.poll_timeout", c.Bot.PollTimeout)
	v.SetDefault("bot.progress_interval", c.Bot.ProgressInterval)
	v.SetDefault("bot.formats_per_page", c.Bot.FormatsPerPage)

	v.SetDefault("download.dir", c.Download.Dir)
	v.SetDefault("download.max_file_size", c.Download.MaxFileSize)
	v.SetDefault("download.file_expiry_seconds", c.Download.FileExpirySeconds)
	v.SetDefault("download.cleanup_interval", c.Download.CleanupInterval)

	v.SetDefault("extractor.backend", c.Extractor.Backend)
	v.SetDefault("extractor.ytdlp_binary", c.Extractor.YTDLPBinary)
	v.SetDefault("extractor.ffmpeg_binary", c.Extractor.FFmpegBinary)
	v.SetDefault("extractor.cookie_file", c.Extractor.CookieFile)
	v.SetDefault("extractor.min_video_height", c.Extractor.MinVideoHeight)
	v.SetDefault("extractor.max_audio_formats", c.Extractor.MaxAudioFormats)
	v.SetDefault("extractor.audio_quality", c.Extractor.AudioQuality)

	v.SetDefault("history.enabled", c.History.Enabled)
	v.SetDefault("history.database_path", c.History.DatabasePath)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("logging.output_path", c.Logging.OutputPath)
}

func bindEnv(v *viper.Viper) error {
	for key, names := range legacyEnv {
		prefixed := "YTFETCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		args := append([]string{key, prefixed}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	if err := v.BindEnv("render", "RENDER"); err != nil {
		return fmt.Errorf("failed to bind env for render: %w", err)
	}
	if err := v.BindEnv("render_service_name", "RENDER_SERVICE_NAME"); err != nil {
		return fmt.Errorf("failed to bind env for render service: %w", err)
	}
	return nil
}

// applyRender switches to the paths and public URL of a Render deployment
func applyRender(config *domain.Config, service string) {
	if service == "" {
		service = "ytfetch"
	}
	config.Download.Dir = renderDownloadDir
	config.Server.BaseURL = fmt.Sprintf("https://%s.onrender.com", service)
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.Dir = expandPath(config.Download.Dir)
	config.Extractor.CookieFile = expandPath(config.Extractor.CookieFile)
	config.History.DatabasePath = expandPath(config.History.DatabasePath)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}
	config.Server.BaseURL = strings.TrimRight(config.Server.BaseURL, "/")

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return path
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.Dir == "" {
		return fmt.Errorf("download directory not configured")
	}

	if config.Download.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive")
	}

	if config.Download.FileExpirySeconds <= 0 {
		return fmt.Errorf("file expiry must be positive")
	}

	if config.Download.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive")
	}

	switch config.Extractor.Backend {
	case domain.BackendAuto, domain.BackendYTDLP, domain.BackendNative:
	default:
		return fmt.Errorf("unknown extractor backend: %q", config.Extractor.Backend)
	}

	if config.History.Enabled && config.History.DatabasePath == "" {
		return fmt.Errorf("history database path not configured")
	}

	if config.Bot.FormatsPerPage < 1 {
		config.Bot.FormatsPerPage = 5
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// ValidateBotConfig checks the settings needed to run the chat surface
func ValidateBotConfig(config *domain.Config) error {
	if !config.Bot.Enabled {
		return fmt.Errorf("bot is disabled (BOT_ENABLED=false)")
	}
	if config.Bot.Token == "" {
		return fmt.Errorf("bot token not configured (BOT_TOKEN)")
	}
	return nil
}
