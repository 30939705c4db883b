package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewQueueCommand groups queue-inspection subcommands.
func NewQueueCommand() *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the shared job queue",
	}
	queueCmd.AddCommand(newQueueDepthCommand())
	return queueCmd
}

func newQueueDepthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "depth",
		Short: "Print the number of jobs waiting in the queue",
		RunE: func(c *cobra.Command, args []string) error {
			client, err := connectQueue(c)
			if err != nil {
				return fmt.Errorf("failed to connect to queue: %w", err)
			}
			defer client.Close()

			depth, err := client.QueueDepth(context.Background())
			if err != nil {
				return fmt.Errorf("failed to read queue depth: %w", err)
			}
			fmt.Println(depth)
			return nil
		},
	}
}
