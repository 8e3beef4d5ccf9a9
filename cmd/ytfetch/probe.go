package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/yt-fetch-go/internal/app"
)

var probeCmd = &cobra.Command{
	Use:   "probe [url]",
	Short: "Show the downloadable formats of a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		defer rt.log.Sync()

		service := rt.newService(nil)
		session, err := service.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer service.Cleanup(session.ID)

		media := session.Media
		fmt.Printf("Title:    %s\n", media.Title)
		fmt.Printf("Author:   %s\n", media.Author)
		fmt.Printf("Duration: %s\n", app.FormatDuration(media.Duration))
		fmt.Printf("Backend:  %s\n\n", rt.extractor.Name())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FORMAT\tTYPE\tQUALITY\tEXT\tSIZE")
		for _, f := range media.Formats {
			size := "-"
			if f.Size > 0 {
				size = app.FormatSize(f.Size)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.ID, f.Kind, f.Label, f.Ext, size)
		}
		return w.Flush()
	},
}
