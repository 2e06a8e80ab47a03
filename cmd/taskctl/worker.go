package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Inspect worker heartbeats",
}

var workerMaxAge time.Duration

var workerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workers that have heartbeated recently",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		workers, err := c.ListWorkers(context.Background(), workerMaxAge)
		if err != nil {
			return err
		}

		return printJSON(workers)
	},
}

func init() {
	workerListCmd.Flags().DurationVar(&workerMaxAge, "max-age", 2*time.Minute, "only show workers with a heartbeat newer than this")

	workerCmd.AddCommand(workerListCmd)
	rootCmd.AddCommand(workerCmd)
}
