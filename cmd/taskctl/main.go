// Command taskctl is a thin, same-host operational CLI over pkg/client. It
// constructs no prompts and performs no permission-tier selection; it only
// reads and writes already-fully-specified task.Task records against the
// same Store/Queue/DLQ files cmd/supervisor owns, since THE CORE has no
// network admission service for a CLI to talk to instead.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/pkg/client"
)

var rootCmd = &cobra.Command{
	Use:   "taskctl",
	Short: "Operate THE CORE's task ledger from the command line",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "taskctl: %v\n", err)
		os.Exit(1)
	}
}

// openClient loads the shared config and opens a Client against its
// Store/Queue/DLQ. Every subcommand calls this right before it needs the
// ledger, rather than once in a PersistentPreRun, so a --help invocation
// never has to touch disk.
func openClient() (*client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return client.Open(cfg)
}
