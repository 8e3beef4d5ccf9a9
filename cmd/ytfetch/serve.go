package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/yt-fetch-go/api"
	"github.com/yourusername/yt-fetch-go/api/handlers"
	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/bot"
	"github.com/yourusername/yt-fetch-go/internal/domain"
	"github.com/yourusername/yt-fetch-go/internal/infrastructure"
)

const shutdownTimeout = 30 * time.Second

var (
	botOnly bool
	webOnly bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the web interface",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if botOnly && webOnly {
			return fmt.Errorf("--bot-only and --web-only are mutually exclusive")
		}
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&botOnly, "bot-only", false, "Run only the Telegram bot")
	serveCmd.Flags().BoolVar(&webOnly, "web-only", false, "Run only the web interface")
}

func runServe() error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	log := rt.log
	defer log.Sync()

	runBot, err := shouldRunBot(rt.config, log)
	if err != nil {
		return err
	}
	runWeb := !botOnly

	log.Info("Starting ytfetch",
		zap.String("version", handlers.Version),
		zap.String("backend", rt.extractor.Name()),
		zap.String("download_dir", rt.config.Download.Dir),
		zap.Bool("bot", runBot),
		zap.Bool("web", runWeb))

	// history stays an untyped nil when disabled
	var history domain.HistoryRepository
	if rt.config.History.Enabled {
		repo, err := infrastructure.NewSQLiteHistoryRepository(rt.config.History.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer repo.Close()
		history = repo
	}

	service := rt.newService(history)
	sweeper := rt.newSweeper()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sweeper.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if runWeb {
		router := api.SetupRouter(service, sweeper, history, rt.config, log.Named("http"))
		addr := fmt.Sprintf("%s:%d", rt.config.Server.Host, rt.config.Server.Port)
		server := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			log.Info("HTTP server listening", zap.String("addr", addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("Server forced to shutdown", zap.Error(err))
			}
			return nil
		})
	}

	if runBot {
		b, err := bot.New(rt.config, service, log.Named("bot"))
		if err != nil {
			stop()
			_ = g.Wait()
			_ = sweeper.Stop()
			return err
		}
		g.Go(func() error {
			return b.Run(gctx)
		})
	}

	runErr := g.Wait()
	if runErr != nil {
		log.Error("Surface stopped with error", zap.Error(runErr))
	}
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		log.Error("Jobs did not finish in time", zap.Error(err))
	}
	if sweeper.IsRunning() {
		if err := sweeper.Stop(); err != nil {
			log.Error("Error stopping sweeper", zap.Error(err))
		}
	}

	log.Info("Server exited")
	return runErr
}

// shouldRunBot decides whether the chat surface starts. --bot-only demands
// a usable configuration; the default mode skips the bot with a warning.
func shouldRunBot(config *domain.Config, log *zap.Logger) (bool, error) {
	if webOnly {
		return false, nil
	}
	if err := app.ValidateBotConfig(config); err != nil {
		if botOnly {
			return false, err
		}
		log.Warn("Telegram bot not started", zap.Error(err))
		return false, nil
	}
	return true, nil
}
