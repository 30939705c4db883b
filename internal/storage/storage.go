// Package storage wraps MinIO object access for testcase inputs/outputs,
// checker/validator/comparator sources, and anigma archives.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the MinIO connection settings.
type Config struct {
	Endpoint  string
	Port      int
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Client downloads and uploads objects from a single configured bucket.
type Client struct {
	client *minio.Client
	bucket string
}

// New dials MinIO and returns a Client bound to cfg.Bucket.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	endpoint := cfg.Endpoint
	if cfg.Port != 0 {
		endpoint = fmt.Sprintf("%s:%d", cfg.Endpoint, cfg.Port)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client failed: %w", err)
	}

	return &Client{client: client, bucket: cfg.Bucket}, nil
}

// DownloadBytes fetches an object's full content as raw bytes.
func (c *Client) DownloadBytes(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get object failed: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", objectKey, err)
	}
	return data, nil
}

// DownloadText fetches an object's full content as a string.
func (c *Client) DownloadText(ctx context.Context, objectKey string) (string, error) {
	data, err := c.DownloadBytes(ctx, objectKey)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PutObject uploads data under objectKey.
func (c *Client) PutObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	if objectKey == "" {
		return fmt.Errorf("objectKey is required")
	}
	opts := minio.PutObjectOptions{}
	if contentType != "" {
		opts.ContentType = contentType
	}
	_, err := c.client.PutObject(ctx, c.bucket, objectKey, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("minio put object failed: %w", err)
	}
	return nil
}

// StatObject returns the size in bytes of an existing object, or an error
// if it does not exist.
func (c *Client) StatObject(ctx context.Context, objectKey string) (int64, error) {
	info, err := c.client.StatObject(ctx, c.bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("minio stat object failed: %w", err)
	}
	return info.Size, nil
}
