// Package config loads and validates the judge worker's process configuration.
package config

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config represents the judge worker's runtime configuration, loaded once at
// startup from environment variables (and, optionally, a YAML file).
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	// Queue / result transport.
	RedisURL string `mapstructure:"redis_url"`

	// Blob storage.
	MinIOEndpoint  string `mapstructure:"minio_endpoint"`
	MinIOPort      int    `mapstructure:"minio_port"`
	MinIOAccessKey string `mapstructure:"minio_access_key"`
	MinIOSecretKey string `mapstructure:"minio_secret_key"`
	MinIOBucket    string `mapstructure:"minio_bucket"`
	MinIOUseSSL    bool   `mapstructure:"minio_use_ssl"`

	// Compile limits for user-code compiles and `make build` steps (anigma,
	// playground). Trusted checker/validator compiles use their own fixed caps.
	CompileTimeLimitMs   uint32 `mapstructure:"compile_time_limit_ms"`
	CompileMemoryLimitMB uint32 `mapstructure:"compile_memory_limit_mb"`

	// Checker / validator invocation timeout, in seconds.
	CheckerTimeoutSecs uint64 `mapstructure:"checker_timeout_secs"`

	// Worker identity lease.
	MaxWorkers     uint32        `mapstructure:"max_workers"`
	WorkerLeaseTTL time.Duration `mapstructure:"worker_lease_ttl"`

	// Trusted binary caches.
	CheckerCacheDir   string `mapstructure:"checker_cache_dir"`
	ValidatorCacheDir string `mapstructure:"validator_cache_dir"`
	TestlibHeaderDir  string `mapstructure:"testlib_header_dir"`

	// Optional admin/health HTTP surface (C15), started only when AdminEnabled
	// is set; it listens on AdminBindAddress.
	AdminBindAddress string `mapstructure:"admin_bind_address"`
	AdminEnabled     bool   `mapstructure:"admin_enabled"`

	// Languages table; empty uses the embedded default.
	LanguagesConfigPath string `mapstructure:"languages_config_path"`
}

// Load loads configuration from environment variables and, optionally, a
// config file, mirroring the layered viper setup used elsewhere in this
// family of services.
func Load() (*Config, error) {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("redis_url", "redis://localhost:6379")

	viper.SetDefault("minio_endpoint", "localhost")
	viper.SetDefault("minio_port", 9000)
	viper.SetDefault("minio_access_key", "")
	viper.SetDefault("minio_secret_key", "")
	viper.SetDefault("minio_bucket", "judge")
	viper.SetDefault("minio_use_ssl", false)

	viper.SetDefault("compile_time_limit_ms", 30_000)
	viper.SetDefault("compile_memory_limit_mb", 2048)
	viper.SetDefault("checker_timeout_secs", 30)

	viper.SetDefault("max_workers", 10)
	viper.SetDefault("worker_lease_ttl", "120s")

	viper.SetDefault("checker_cache_dir", "/tmp/checker_cache")
	viper.SetDefault("validator_cache_dir", "/tmp/validator_cache")
	viper.SetDefault("testlib_header_dir", "/opt/testlib")

	viper.SetDefault("admin_enabled", false)
	viper.SetDefault("admin_bind_address", "0.0.0.0:8080")

	viper.SetDefault("languages_config_path", "")

	// Bare names for the env vars the enclosing platform sets, plus
	// a WORKER_ prefix for everything else via AutomaticEnv.
	viper.BindEnv("redis_url", "REDIS_URL")
	viper.BindEnv("minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("minio_port", "MINIO_PORT")
	viper.BindEnv("minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("minio_bucket", "MINIO_BUCKET")
	viper.BindEnv("minio_use_ssl", "MINIO_USE_SSL")

	viper.SetEnvPrefix("WORKER")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/judgeworker/")
	viper.AddConfigPath("$HOME/.judgeworker/")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if cfg.MinIOBucket == "" {
		return fmt.Errorf("minio_bucket must not be empty")
	}

	if cfg.MaxWorkers == 0 || cfg.MaxWorkers > 10 {
		return fmt.Errorf("max_workers must be in 1..10 (isolate box-id range is 0-9999)")
	}

	if cfg.CompileTimeLimitMs == 0 {
		return fmt.Errorf("compile_time_limit_ms must be positive")
	}

	return nil
}

// GetLogLevel returns the parsed log level, defaulting to Info on error.
func (c *Config) GetLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
