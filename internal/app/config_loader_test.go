package app

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "downloads")
	t.Setenv("DOWNLOAD_PATH", dir)
	t.Setenv("YTFETCH_HISTORY_DATABASE_PATH", filepath.Join(t.TempDir(), "history.db"))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := setupEnv(t)

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, dir, config.Download.Dir)
	assert.Equal(t, 5000, config.Server.Port)
	assert.Equal(t, int64(50*1024*1024), config.Download.MaxFileSize)
	assert.Equal(t, 24*time.Hour, config.Download.FileExpiry())
	assert.True(t, config.Bot.Enabled)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadConfig_LegacyEnvironment(t *testing.T) {
	setupEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("WEB_PORT", "9000")
	t.Setenv("WEB_HOST", "127.0.0.1")
	t.Setenv("MAX_FILE_SIZE", "1048576")
	t.Setenv("FILE_EXPIRY", "60")
	t.Setenv("CLEANUP_INTERVAL", "30m")
	t.Setenv("DEBUG", "True")
	t.Setenv("BOT_ENABLED", "false")
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("BASE_URL", "https://example.org/")

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8081, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, int64(1048576), config.Download.MaxFileSize)
	assert.Equal(t, time.Minute, config.Download.FileExpiry())
	assert.Equal(t, 30*time.Minute, config.Download.CleanupInterval)
	assert.True(t, config.Server.Debug)
	assert.False(t, config.Bot.Enabled)
	assert.Equal(t, "123:abc", config.Bot.Token)
	assert.Equal(t, "https://example.org", config.Server.BaseURL)
}

func TestLoadConfig_CleanupIntervalUnits(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"3600", time.Hour},
		{" 90 ", 90 * time.Second},
		{"45m", 45 * time.Minute},
		{"1h30m", 90 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			setupEnv(t)
			t.Setenv("CLEANUP_INTERVAL", tt.value)

			config, err := LoadConfig("")
			require.NoError(t, err)
			assert.Equal(t, tt.want, config.Download.CleanupInterval)
		})
	}
}

func TestSecondsToDurationHook(t *testing.T) {
	durationType := reflect.TypeOf(time.Duration(0))

	got, err := secondsToDurationHook(reflect.TypeOf(0), durationType, 3600)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, got)

	got, err = secondsToDurationHook(durationType, durationType, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, got, "durations pass through untouched")

	got, err = secondsToDurationHook(reflect.TypeOf(""), reflect.TypeOf(0), "3600")
	require.NoError(t, err)
	assert.Equal(t, "3600", got, "only duration fields are converted")
}

func TestLoadConfig_WebPortFallback(t *testing.T) {
	setupEnv(t)
	t.Setenv("WEB_PORT", "9000")

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 9000, config.Server.Port)
}

func TestLoadConfig_PrefixedEnvironment(t *testing.T) {
	setupEnv(t)
	t.Setenv("YTFETCH_EXTRACTOR_BACKEND", "native")
	t.Setenv("YTFETCH_LOGGING_FORMAT", "json")

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, domain.BackendNative, config.Extractor.Backend)
	assert.Equal(t, "json", config.Logging.Format)
}

func TestLoadConfig_File(t *testing.T) {
	setupEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
download:
  max_file_size: 2048
extractor:
  min_video_height: 480
bot:
  formats_per_page: 3
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), config.Download.MaxFileSize)
	assert.Equal(t, 480, config.Extractor.MinVideoHeight)
	assert.Equal(t, 3, config.Bot.FormatsPerPage)
}

func TestLoadConfig_Render(t *testing.T) {
	setupEnv(t)
	t.Setenv("RENDER", "true")
	t.Setenv("RENDER_SERVICE_NAME", "mybot")

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, renderDownloadDir, config.Download.Dir)
	assert.Equal(t, "https://mybot.onrender.com", config.Server.BaseURL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port out of range", "PORT", "70000"},
		{"zero max size", "MAX_FILE_SIZE", "0"},
		{"negative expiry", "FILE_EXPIRY", "-1"},
		{"unknown backend", "YTFETCH_EXTRACTOR_BACKEND", "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := LoadConfig("")
			assert.Error(t, err)
		})
	}
}

func TestValidateBotConfig(t *testing.T) {
	config := domain.DefaultConfig()
	assert.Error(t, ValidateBotConfig(config), "token is required")

	config.Bot.Token = "123:abc"
	assert.NoError(t, ValidateBotConfig(config))

	config.Bot.Enabled = false
	assert.Error(t, ValidateBotConfig(config))
}

func TestExpandPath(t *testing.T) {
	t.Setenv("YTFETCH_TEST_DIR", "/srv/media")
	assert.Equal(t, "/srv/media/x", expandPath("$YTFETCH_TEST_DIR/x"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data"), expandPath("~/data"))
}
