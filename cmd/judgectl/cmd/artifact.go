package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coderunr/judgeworker/internal/storage"
)

// NewArtifactCommand groups object-storage subcommands: uploading a
// testcase/checker/archive before enqueueing a job that references it, and
// checking that a job's artifact paths actually resolve.
func NewArtifactCommand() *cobra.Command {
	artifactCmd := &cobra.Command{
		Use:   "artifact",
		Short: "Upload and inspect job artifacts in object storage",
	}
	artifactCmd.AddCommand(newArtifactPutCommand())
	artifactCmd.AddCommand(newArtifactStatCommand())
	return artifactCmd
}

func newArtifactPutCommand() *cobra.Command {
	var contentType string

	putCmd := &cobra.Command{
		Use:   "put <object-key> <file>",
		Short: "Upload a local file as a job artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			objectKey, path := args[0], args[1]

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			client, err := connectStorage()
			if err != nil {
				return err
			}

			if err := client.PutObject(context.Background(), objectKey, data, contentType); err != nil {
				return fmt.Errorf("failed to upload artifact: %w", err)
			}

			fmt.Printf("uploaded %s (%d bytes) as %s\n", path, len(data), objectKey)
			return nil
		},
	}
	putCmd.Flags().StringVar(&contentType, "content-type", "", "content type to store with the object")
	return putCmd
}

func newArtifactStatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <object-key>",
		Short: "Check that a job artifact exists and print its size",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			client, err := connectStorage()
			if err != nil {
				return err
			}

			size, err := client.StatObject(context.Background(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s\t%d bytes\n", args[0], size)
			return nil
		},
	}
}

// connectStorage dials MinIO from the same MINIO_* environment variables
// the worker reads, so judgectl stages artifacts into the bucket the worker
// will fetch them from.
func connectStorage() (*storage.Client, error) {
	port := 0
	if p := os.Getenv("MINIO_PORT"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid MINIO_PORT %q: %w", p, err)
		}
		port = parsed
	}

	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost"
		if port == 0 {
			port = 9000
		}
	}

	bucket := os.Getenv("MINIO_BUCKET")
	if bucket == "" {
		bucket = "judge"
	}

	client, err := storage.New(storage.Config{
		Endpoint:  endpoint,
		Port:      port,
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    bucket,
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to object storage: %w", err)
	}
	return client, nil
}
