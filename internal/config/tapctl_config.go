package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/sethvargo/go-envconfig"
)

// DefaultFetchTimeout bounds a single artifact download
const DefaultFetchTimeout = 10 * time.Minute

// Config represents the tapctl.toml configuration file. Fields tagged with
// env can also be set from the environment, which takes precedence.
type Config struct {
	// Tap is the descriptor catalog directory
	Tap string `toml:"tap,omitempty"`

	// Destination overrides for installed executables and applications
	BinDir string `toml:"bin_dir,omitempty"`
	AppDir string `toml:"app_dir,omitempty"`

	// Install packages that declare no checksum, with a warning
	AllowUnverified bool `toml:"allow_unverified" env:"TAPCTL_ALLOW_UNVERIFIED,overwrite"`

	// Per-artifact fetch deadline, e.g. "90s" or "10m"
	FetchTimeout string `toml:"fetch_timeout" env:"TAPCTL_FETCH_TIMEOUT,overwrite"`

	// Packages processed in parallel by batch installs
	Jobs int `toml:"jobs" env:"TAPCTL_JOBS,overwrite"`

	// Keep downloaded artifacts in the cache directory
	KeepDownloads bool `toml:"keep_downloads"`

	Log LogConfig `toml:"log"`
	S3  S3Config  `toml:"s3"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `toml:"level" env:"TAPCTL_LOG_LEVEL,overwrite"`
	Format string `toml:"format" env:"TAPCTL_LOG_FORMAT,overwrite"` // text, json, logfmt
}

// S3Config configures the s3:// fetcher. Credentials come from the
// standard AWS chain unless a static key pair is given.
type S3Config struct {
	Region       string `toml:"region,omitempty" env:"TAPCTL_S3_REGION,overwrite"`
	Endpoint     string `toml:"endpoint,omitempty" env:"TAPCTL_S3_ENDPOINT,overwrite"`
	UsePathStyle bool   `toml:"use_path_style" env:"TAPCTL_S3_USE_PATH_STYLE,overwrite"`
	AccessKey    string `toml:"-" env:"TAPCTL_S3_ACCESS_KEY"`
	SecretKey    string `toml:"-" env:"TAPCTL_S3_SECRET_KEY"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		FetchTimeout: DefaultFetchTimeout.String(),
		Jobs:         1,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads tapctl.toml from configDir and applies environment
// overrides. A missing file yields the defaults.
func LoadConfig(configDir string) (*Config, error) {
	return loadConfig(context.Background(), configDir, envconfig.OsLookuper())
}

func loadConfig(ctx context.Context, configDir string, l envconfig.Lookuper) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Join(configDir, "tapctl.toml"))
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse tapctl.toml: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	if err := envconfig.ProcessWith(ctx, cfg, l); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be expressed as TOML types
func (c *Config) Validate() error {
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	switch c.Log.Format {
	case "", "text", "json", "logfmt":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Timeout parses FetchTimeout. Zero disables the deadline.
func (c *Config) Timeout() (time.Duration, error) {
	if c.FetchTimeout == "" || c.FetchTimeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.FetchTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid fetch_timeout %q: %w", c.FetchTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("fetch_timeout must not be negative, got %s", d)
	}
	return d, nil
}

// Save writes tapctl.toml to disk
func (c *Config) Save(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "tapctl.toml"), data, 0644)
}
