package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(Config{Bucket: "judge"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "endpoint")
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(Config{Endpoint: "localhost", Port: 9000})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bucket")
}

func TestNewAcceptsWellFormedConfig(t *testing.T) {
	client, err := New(Config{Endpoint: "localhost", Port: 9000, Bucket: "judge"})
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestPutObjectRejectsEmptyKey(t *testing.T) {
	client, err := New(Config{Endpoint: "localhost", Port: 9000, Bucket: "judge"})
	require.NoError(t, err)

	err = client.PutObject(context.Background(), "", []byte("data"), "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "objectKey is required")
}
