package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewResultCommand groups the result-lookup subcommands.
func NewResultCommand() *cobra.Command {
	resultCmd := &cobra.Command{
		Use:   "result",
		Short: "Fetch a stored job result",
	}
	resultCmd.AddCommand(newResultJudgeCommand())
	return resultCmd
}

func newResultJudgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "judge <submission-id>",
		Short: "Fetch a stored judge result by submission id",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			submissionID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid submission id: %w", err)
			}

			client, err := connectQueue(c)
			if err != nil {
				return fmt.Errorf("failed to connect to queue: %w", err)
			}
			defer client.Close()

			raw, err := client.FetchJudgeResult(context.Background(), submissionID)
			if err != nil {
				return err
			}

			var pretty map[string]interface{}
			if err := json.Unmarshal([]byte(raw), &pretty); err != nil {
				fmt.Println(raw)
				return nil
			}
			encoded, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(encoded))
			return nil
		},
	}
}
