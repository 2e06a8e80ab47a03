package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and retry dead-lettered tasks",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks that exhausted their retries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		entries, err := c.ListDLQ()
		if err != nil {
			return err
		}

		return printJSON(entries)
	},
}

var dlqRetryAll bool

var dlqRetryCmd = &cobra.Command{
	Use:   "retry [task-id]",
	Short: "Re-enqueue one dead-lettered task, or every one with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if dlqRetryAll {
			retried, err := c.RetryAllDLQ()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retried %d task(s)\n", retried)
			return nil
		}

		if len(args) != 1 {
			return fmt.Errorf("dlq retry: pass a task-id, or --all")
		}

		return c.RetryDLQTask(args[0])
	},
}

func init() {
	dlqRetryCmd.Flags().BoolVar(&dlqRetryAll, "all", false, "retry every dead-lettered task")

	dlqCmd.AddCommand(dlqListCmd, dlqRetryCmd)
	rootCmd.AddCommand(dlqCmd)
}
