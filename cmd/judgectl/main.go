// Command judgectl is the judge worker's operator CLI (C16): inspect the
// queue, list the language registry, and tail a submission's published
// result, talking to Redis directly the way a worker would.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coderunr/judgeworker/cmd/judgectl/cmd"
)

var (
	version = "1.0.0"
	commit  = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "judgectl",
		Short: "Operator CLI for the judge worker",
		Long:  "judgectl inspects a running judge worker's queue, language registry, and published results.",
	}

	rootCmd.PersistentFlags().String("redis-url", "redis://localhost:6379", "redis connection URL")

	rootCmd.AddCommand(cmd.NewArtifactCommand())
	rootCmd.AddCommand(cmd.NewLanguagesCommand())
	rootCmd.AddCommand(cmd.NewQueueCommand())
	rootCmd.AddCommand(cmd.NewResultCommand())
	rootCmd.AddCommand(cmd.NewSubmitCommand())
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(c *cobra.Command, args []string) {
			fmt.Printf("judgectl %s (%s)\n", version, commit)
		},
	}
}
