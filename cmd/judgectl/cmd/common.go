package cmd

import (
	"github.com/spf13/cobra"

	"github.com/coderunr/judgeworker/internal/queue"
)

// connectQueue dials Redis using the --redis-url flag shared by every
// subcommand that needs to talk to the queue.
func connectQueue(c *cobra.Command) (*queue.Client, error) {
	url, err := c.Root().PersistentFlags().GetString("redis-url")
	if err != nil {
		url = "redis://localhost:6379"
	}
	return queue.New(queue.Config{URL: url}, nil)
}
