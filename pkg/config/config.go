// Package config loads gatling-report settings from defaults, an optional
// file, GATLING_REPORT_* environment variables and command line flags, in
// increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gatling-report/pkg/source"
)

const EnvPrefix = "GATLING_REPORT"

var ErrInvalidConfig = errors.New("invalid configuration")

// Log formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PathStyle       bool   `mapstructure:"path_style"`
}

type Config struct {
	// ApdexThreshold in milliseconds, 0 disables apdex
	ApdexThreshold float64       `mapstructure:"apdex_threshold"`
	Log            LogConfig     `mapstructure:"log"`
	Workers        int           `mapstructure:"workers"`
	FileTimeout    time.Duration `mapstructure:"file_timeout"`
	StoragePath    string        `mapstructure:"storage_path"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	// MetricsAddr of the Prometheus listener, empty disables it
	MetricsAddr string   `mapstructure:"metrics_addr"`
	S3          S3Config `mapstructure:"s3"`
}

// flag name -> configuration key
var flagKeys = map[string]string{
	"apdex-threshold": "apdex_threshold",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"workers":         "workers",
	"file-timeout":    "file_timeout",
	"storage-path":    "storage_path",
	"listen-addr":     "listen_addr",
	"metrics-addr":    "metrics_addr",
	"s3-region":       "s3.region",
	"s3-endpoint":     "s3.endpoint",
	"s3-path-style":   "s3.path_style",
}

// New returns a viper instance with defaults and environment binding
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("apdex_threshold", 0.0)
	v.SetDefault("log.level", zerolog.InfoLevel.String())
	v.SetDefault("log.format", FormatConsole)
	v.SetDefault("workers", 4)
	v.SetDefault("file_timeout", 10*time.Minute)
	v.SetDefault("storage_path", "./data/simulations")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.path_style", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// RegisterFlags declares the configuration flags on fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Float64("apdex-threshold", 0, "apdex threshold T in milliseconds, 0 disables apdex")
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	fs.String("log-format", FormatConsole, "log format (console, json)")
	fs.Int("workers", 4, "files parsed concurrently")
	fs.Duration("file-timeout", 10*time.Minute, "abort a single file after this duration")
	fs.String("storage-path", "./data/simulations", "directory of stored summaries")
	fs.String("listen-addr", ":8080", "HTTP API listen address")
	fs.String("metrics-addr", "", "Prometheus listen address, empty disables it")
	fs.String("s3-region", "us-east-1", "region for s3:// locations")
	fs.String("s3-endpoint", "", "S3 compatible endpoint URL")
	fs.Bool("s3-path-style", false, "use path style S3 addressing")
}

// BindFlags binds every registered flag present in fs to its key. Only
// flags set on the command line override file and environment values.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the optional file and returns the validated configuration
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.ApdexThreshold < 0 {
		return fmt.Errorf("%w: apdex_threshold must not be negative, got %v", ErrInvalidConfig, c.ApdexThreshold)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.FileTimeout <= 0 {
		return fmt.Errorf("%w: file_timeout must be positive, got %s", ErrInvalidConfig, c.FileTimeout)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil || c.Log.Level == "" {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	if c.Log.Format != FormatConsole && c.Log.Format != FormatJSON {
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// ObjectStore converts the s3 section for the source package
func (c *Config) ObjectStore() source.S3Config {
	return source.S3Config{
		Region:          c.S3.Region,
		Endpoint:        c.S3.Endpoint,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		PathStyle:       c.S3.PathStyle,
	}
}
