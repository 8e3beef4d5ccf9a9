package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
	"github.com/yourusername/yt-fetch-go/internal/infrastructure"
	"github.com/yourusername/yt-fetch-go/pkg/logger"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "ytfetch",
		Short: "ytfetch - YouTube downloads over Telegram and the web",
		Long: `ytfetch resolves YouTube links, lets users pick a format and
downloads it through yt-dlp or a built-in client.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runtime is the shared wiring every command starts from
type runtime struct {
	config    *domain.Config
	log       *zap.Logger
	fs        afero.Fs
	extractor domain.Extractor
}

func newRuntime(quiet bool) (*runtime, error) {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logConfig := logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
		Debug:      config.Server.Debug,
	}
	if quiet && !config.Server.Debug {
		// keep one-shot commands readable
		logConfig.Level = "warn"
		logConfig.OutputPath = "stderr"
	}
	log, err := logger.New(logConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	fs := afero.NewOsFs()
	if err := fs.MkdirAll(config.Download.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	extractor, err := infrastructure.SelectExtractor(config.Extractor, config.Download.Dir, fs, log.Named("extractor"))
	if err != nil {
		return nil, err
	}

	return &runtime{config: config, log: log, fs: fs, extractor: extractor}, nil
}

// newService builds the session store, job runner and media service
func (rt *runtime) newService(history domain.HistoryRepository) *app.MediaService {
	store := app.NewSessionStore()
	runner := app.NewJobRunner(store, rt.extractor, history, rt.fs, app.RunnerConfig{
		MaxFileSize:      rt.config.Download.MaxFileSize,
		ProgressInterval: rt.config.Bot.ProgressInterval,
	}, rt.log.Named("runner"))
	return app.NewMediaService(store, runner, rt.extractor, rt.fs, rt.log.Named("service"))
}

func (rt *runtime) newSweeper() *app.RetentionSweeper {
	return app.NewRetentionSweeper(rt.fs, rt.config.Download.Dir,
		rt.config.Download.FileExpiry(), rt.config.Download.CleanupInterval, rt.log.Named("sweeper"))
}
