package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewSubmitCommand pushes a raw job JSON file onto the queue, tagged with
// the given job_type, for operator testing (including triggering an
// ad-hoc playground run).
func NewSubmitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <job-type> <job.json>",
		Short: "Enqueue a job from a JSON file (judge, validate, anigma, anigma_task1, playground)",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			jobType, path := args[0], args[1]

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			var fields map[string]json.RawMessage
			if err := json.Unmarshal(data, &fields); err != nil {
				return fmt.Errorf("%s is not a JSON object: %w", path, err)
			}
			fields["job_type"], _ = json.Marshal(jobType)

			// Ad-hoc playground submissions rarely come with a session id
			// attached; mint one the same way a real submission would.
			if jobType == "playground" {
				if _, ok := fields["session_id"]; !ok {
					fields["session_id"], _ = json.Marshal(uuid.New().String())
				}
			}

			envelope, err := json.Marshal(fields)
			if err != nil {
				return fmt.Errorf("failed to re-marshal job envelope: %w", err)
			}

			client, err := connectQueue(c)
			if err != nil {
				return fmt.Errorf("failed to connect to queue: %w", err)
			}
			defer client.Close()

			if err := client.Enqueue(context.Background(), envelope); err != nil {
				return fmt.Errorf("failed to enqueue job: %w", err)
			}

			fmt.Printf("enqueued %s job from %s\n", jobType, path)
			return nil
		},
	}
}
