package main

import (
	"context"

	"github.com/spf13/cobra"
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Inspect unresolved alerts",
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unresolved alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		alerts, err := c.ListAlerts(context.Background())
		if err != nil {
			return err
		}

		return printJSON(alerts)
	},
}

func init() {
	alertCmd.AddCommand(alertListCmd)
	rootCmd.AddCommand(alertCmd)
}
