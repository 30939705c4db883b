package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		LogLevel:           "info",
		MinIOBucket:        "judge",
		CompileTimeLimitMs: 30_000,
		MaxWorkers:         10,
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	require.NoError(t, validate(validConfig()))
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "not-a-level"
	require.Error(t, validate(cfg))
}

func TestValidateRejectsEmptyBucket(t *testing.T) {
	cfg := validConfig()
	cfg.MinIOBucket = ""
	require.Error(t, validate(cfg))
}

func TestValidateRejectsMaxWorkersOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.MaxWorkers = 0
	require.Error(t, validate(cfg))

	cfg.MaxWorkers = 11
	require.Error(t, validate(cfg))
}

func TestValidateRejectsZeroCompileTimeLimit(t *testing.T) {
	cfg := validConfig()
	cfg.CompileTimeLimitMs = 0
	require.Error(t, validate(cfg))
}

func TestGetLogLevelDefaultsToInfoOnError(t *testing.T) {
	cfg := &Config{LogLevel: "garbage"}
	require.Equal(t, 4 /* logrus.InfoLevel */, int(cfg.GetLogLevel()))
}
