package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maumercado/task-queue-go/internal/task"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Submit, list, and inspect tasks",
}

var (
	submitDescription string
	submitPriority    string
	submitWorkingDir  string
)

var taskSubmitCmd = &cobra.Command{
	Use:   "submit <name> <command>",
	Short: "Enqueue a new task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		priority, err := parsePriority(submitPriority)
		if err != nil {
			return err
		}

		t := task.New(args[0], args[1], priority)
		t.Description = submitDescription
		t.WorkingDir = submitWorkingDir

		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Submit(context.Background(), t); err != nil {
			return err
		}

		return printJSON(t)
	},
}

var listState string

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered by state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		var states []task.State
		if listState != "" {
			states = []task.State{task.State(listState)}
		}

		tasks, err := c.List(context.Background(), states...)
		if err != nil {
			return err
		}

		return printJSON(tasks)
	},
}

var taskGetCmd = &cobra.Command{
	Use:   "get <task-id>",
	Short: "Show a single task's current record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		t, err := c.Get(context.Background(), args[0])
		if err != nil {
			return err
		}

		return printJSON(t)
	},
}

var taskResumeCmd = &cobra.Command{
	Use:   "resume <task-id>",
	Short: "Requeue a PAUSED task back to pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		t, err := c.ResumeTask(context.Background(), args[0])
		if err != nil {
			return err
		}

		return printJSON(t)
	},
}

func parsePriority(s string) (task.Priority, error) {
	switch strings.ToLower(s) {
	case "", "normal":
		return task.PriorityNormal, nil
	case "urgent":
		return task.PriorityUrgent, nil
	case "high":
		return task.PriorityHigh, nil
	case "low":
		return task.PriorityLow, nil
	default:
		return 0, fmt.Errorf("unknown priority %q (want urgent|high|normal|low)", s)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	taskSubmitCmd.Flags().StringVarP(&submitDescription, "description", "d", "", "task description")
	taskSubmitCmd.Flags().StringVarP(&submitPriority, "priority", "p", "normal", "urgent|high|normal|low")
	taskSubmitCmd.Flags().StringVar(&submitWorkingDir, "working-dir", "", "working directory for the assistant invocation")

	taskListCmd.Flags().StringVar(&listState, "state", "", "filter by a single task state")

	taskCmd.AddCommand(taskSubmitCmd, taskListCmd, taskGetCmd, taskResumeCmd)
	rootCmd.AddCommand(taskCmd)
}
