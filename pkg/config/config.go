package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for tweetpull
type Config struct {
	Twitter    TwitterConfig    `yaml:"twitter" json:"twitter"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" json:"rate_limit"`
	Output     OutputConfig     `yaml:"output" json:"output"`
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// TwitterConfig holds session credentials and client settings
type TwitterConfig struct {
	AuthToken   string        `yaml:"auth_token" json:"auth_token"`
	CSRFToken   string        `yaml:"ct0" json:"ct0"`
	Account     string        `yaml:"account" json:"account"`
	BearerToken string        `yaml:"bearer_token" json:"bearer_token"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	PageSize    int           `yaml:"page_size" json:"page_size"`
}

// RateLimitConfig holds the rate governor settings
type RateLimitConfig struct {
	BaseDelay           time.Duration `yaml:"base_delay" json:"base_delay"`
	BackoffMultiplier   float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	MaxRetries          int           `yaml:"max_retries" json:"max_retries"`
	SafetyMargin        time.Duration `yaml:"safety_margin" json:"safety_margin"`
	MinThrottleWait     time.Duration `yaml:"min_throttle_wait" json:"min_throttle_wait"`
	DefaultThrottleWait time.Duration `yaml:"default_throttle_wait" json:"default_throttle_wait"`
}

// OutputConfig holds batch sink settings
type OutputConfig struct {
	BatchSize                int    `yaml:"batch_size" json:"batch_size"`
	MaxBatchMemoryMB         int    `yaml:"max_batch_memory_mb" json:"max_batch_memory_mb"`
	Compression              string `yaml:"compression" json:"compression"`
	IncludeEngagementMetrics bool   `yaml:"include_engagement_metrics" json:"include_engagement_metrics"`
	IncludeMediaInfo         bool   `yaml:"include_media_info" json:"include_media_info"`
}

// ExtractionConfig holds run defaults
type ExtractionConfig struct {
	DefaultDuration string `yaml:"default_duration" json:"default_duration"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// MaxBatchBytes returns the byte threshold for a single batch
func (o OutputConfig) MaxBatchBytes() int64 {
	return int64(o.MaxBatchMemoryMB) * 1024 * 1024
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Twitter: TwitterConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			BaseURL:   "https://x.com/i/api",
			Timeout:   30 * time.Second,
			PageSize:  20,
		},
		RateLimit: RateLimitConfig{
			BaseDelay:           2 * time.Second,
			BackoffMultiplier:   2.0,
			MaxRetries:          5,
			SafetyMargin:        60 * time.Second,
			MinThrottleWait:     300 * time.Second,
			DefaultThrottleWait: 900 * time.Second,
		},
		Output: OutputConfig{
			BatchSize:                50,
			MaxBatchMemoryMB:         500,
			Compression:              "snappy",
			IncludeEngagementMetrics: true,
			IncludeMediaInfo:         true,
		},
		Extraction: ExtractionConfig{
			DefaultDuration: "30 days",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv overrides values from TWEETPULL_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setString("TWEETPULL_AUTH_TOKEN", &c.Twitter.AuthToken)
	setString("TWEETPULL_CT0", &c.Twitter.CSRFToken)
	setString("TWEETPULL_ACCOUNT", &c.Twitter.Account)
	setString("TWEETPULL_BEARER_TOKEN", &c.Twitter.BearerToken)
	setString("TWEETPULL_USER_AGENT", &c.Twitter.UserAgent)
	setString("TWEETPULL_BASE_URL", &c.Twitter.BaseURL)

	setDuration("TWEETPULL_BASE_DELAY", &c.RateLimit.BaseDelay)
	setInt("TWEETPULL_MAX_RETRIES", &c.RateLimit.MaxRetries)

	setInt("TWEETPULL_BATCH_SIZE", &c.Output.BatchSize)
	setInt("TWEETPULL_MAX_BATCH_MEMORY_MB", &c.Output.MaxBatchMemoryMB)
	setString("TWEETPULL_COMPRESSION", &c.Output.Compression)

	setString("TWEETPULL_DURATION", &c.Extraction.DefaultDuration)
	setString("TWEETPULL_LOG_LEVEL", &c.Logging.Level)
	setString("TWEETPULL_LOG_FORMAT", &c.Logging.Format)
	setString("TWEETPULL_LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file. An empty path searches
// the default locations and is not an error when nothing is found.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"tweetpull.yaml",
		"tweetpull.yml",
		".tweetpull.yaml",
		filepath.Join(home, ".config", "tweetpull", "config.yaml"),
		filepath.Join(home, ".config", "tweetpull", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errs []error

	if c.Twitter.BaseURL == "" {
		errs = append(errs, errors.New("twitter base URL is required"))
	}
	if c.Twitter.Timeout <= 0 {
		errs = append(errs, errors.New("twitter timeout must be positive"))
	}
	if c.Twitter.PageSize <= 0 || c.Twitter.PageSize > 100 {
		errs = append(errs, errors.New("twitter page size must be between 1 and 100"))
	}

	if c.RateLimit.BaseDelay < 0 {
		errs = append(errs, errors.New("base delay cannot be negative"))
	}
	if c.RateLimit.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("backoff multiplier must be at least 1"))
	}
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.RateLimit.SafetyMargin < 0 || c.RateLimit.MinThrottleWait < 0 || c.RateLimit.DefaultThrottleWait <= 0 {
		errs = append(errs, errors.New("throttle waits must not be negative and the default wait must be positive"))
	}

	if c.Output.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if c.Output.MaxBatchMemoryMB <= 0 {
		errs = append(errs, errors.New("max batch memory must be positive"))
	}
	switch strings.ToLower(c.Output.Compression) {
	case "snappy", "zstd", "gzip", "none", "":
	default:
		errs = append(errs, fmt.Errorf("unsupported compression %q", c.Output.Compression))
	}

	if strings.TrimSpace(c.Extraction.DefaultDuration) == "" {
		errs = append(errs, errors.New("default duration is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json", "":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeCommandLineFlags applies flag values set on the command line
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-format"].(string); ok && v != "" {
		c.Logging.Format = v
	}
	if v, ok := flags["batch-size"].(int); ok && v > 0 {
		c.Output.BatchSize = v
	}
	if v, ok := flags["max-batch-memory-mb"].(int); ok && v > 0 {
		c.Output.MaxBatchMemoryMB = v
	}
	if v, ok := flags["compression"].(string); ok && v != "" {
		c.Output.Compression = v
	}
	if v, ok := flags["duration"].(string); ok && v != "" {
		c.Extraction.DefaultDuration = v
	}
	if v, ok := flags["account"].(string); ok && v != "" {
		c.Twitter.Account = v
	}
	if v, ok := flags["base-delay"].(time.Duration); ok && v > 0 {
		c.RateLimit.BaseDelay = v
	}
	if v, ok := flags["max-retries"].(int); ok && v >= 0 {
		c.RateLimit.MaxRetries = v
	}
}

// Load loads configuration from all sources with proper precedence:
// flags > environment (including .env files) > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".tweetpull.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
