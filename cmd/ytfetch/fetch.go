package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gosuri/uilive"
	"github.com/spf13/cobra"

	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
)

var (
	fetchFormat string
	fetchOutput string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Download one format of a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFetch(args[0])
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchFormat, "format", "f", "", "Format identifier (see probe)")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "Move the finished file into this directory")
	_ = fetchCmd.MarkFlagRequired("format")
}

func runFetch(url string) error {
	rt, err := newRuntime(true)
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service := rt.newService(nil)
	defer service.Shutdown(context.Background())

	session, err := service.Probe(ctx, url)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", session.Media.Title)

	writer := uilive.New()
	writer.Start()

	done := make(chan app.ProgressUpdate, 1)
	sink := app.ProgressSinkFunc(func(_ context.Context, update app.ProgressUpdate) error {
		switch update.Status {
		case domain.StatusPreparing:
			fmt.Fprintln(writer, "Preparing download...")
		case domain.StatusDownloading:
			fmt.Fprintln(writer, app.RenderProgress(update, 10))
		default:
			if update.Status == domain.StatusCompleted {
				fmt.Fprintln(writer, app.RenderProgress(update, 10))
			}
			done <- update
		}
		return nil
	})

	if err := service.StartDownload(ctx, session.ID, fetchFormat, "", app.JobHooks{Progress: sink}); err != nil {
		writer.Stop()
		_ = service.Cleanup(session.ID)
		if errors.Is(err, domain.ErrInvalidInput) {
			return fmt.Errorf("%w (run `ytfetch probe %s` to list formats)", err, url)
		}
		return err
	}

	var final app.ProgressUpdate
	select {
	case final = <-done:
	case <-ctx.Done():
		_ = service.Cancel(session.ID)
		final = <-done
	}
	writer.Stop()

	if final.Status != domain.StatusCompleted {
		_ = service.Cleanup(session.ID)
		if final.Err != nil {
			return final.Err
		}
		return fmt.Errorf("download %s", final.Status)
	}

	path, name, err := service.OpenFile(session.ID)
	if err != nil {
		return err
	}
	if fetchOutput != "" {
		if err := rt.fs.MkdirAll(fetchOutput, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		target := filepath.Join(fetchOutput, name)
		if err := rt.fs.Rename(path, target); err != nil {
			return fmt.Errorf("failed to move file: %w", err)
		}
		path = target
	}

	fmt.Fprintf(os.Stdout, "Saved to %s\n", path)
	return nil
}
