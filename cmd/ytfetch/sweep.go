package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete downloaded files older than the retention period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		defer rt.log.Sync()

		removed, err := rt.newSweeper().Sweep()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d expired file(s) from %s\n", removed, rt.config.Download.Dir)
		return nil
	},
}
