package infrastructure

import (
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// SelectExtractor builds the extractor named by cfg.Backend. In auto mode
// yt-dlp is preferred and the native client is the fallback.
func SelectExtractor(cfg domain.ExtractorConfig, dir string, fs afero.Fs, logger *zap.Logger) (domain.Extractor, error) {
	transcoder := NewTranscoder(cfg.FFmpegBinary, cfg.AudioQuality, logger)

	switch cfg.Backend {
	case domain.BackendYTDLP:
		version, ok := YTDLPVersion(cfg.YTDLPBinary)
		if !ok {
			return nil, fmt.Errorf("yt-dlp binary %q not found or not executable", cfg.YTDLPBinary)
		}
		logger.Info("Using yt-dlp backend", zap.String("version", version))
		return NewYTDLPExtractor(cfg, dir, fs, transcoder, logger), nil

	case domain.BackendNative:
		logger.Info("Using native backend")
		return NewNativeExtractor(cfg, dir, fs, transcoder, logger), nil

	case domain.BackendAuto, "":
		if version, ok := YTDLPVersion(cfg.YTDLPBinary); ok {
			logger.Info("Using yt-dlp backend", zap.String("version", version))
			return NewYTDLPExtractor(cfg, dir, fs, transcoder, logger), nil
		}
		logger.Warn("yt-dlp not available, falling back to native backend",
			zap.String("binary", cfg.YTDLPBinary))
		return NewNativeExtractor(cfg, dir, fs, transcoder, logger), nil

	default:
		return nil, fmt.Errorf("unknown extractor backend %q", cfg.Backend)
	}
}
