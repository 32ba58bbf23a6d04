package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 2*time.Second, config.RateLimit.BaseDelay)
	assert.Equal(t, 5, config.RateLimit.MaxRetries)
	assert.Equal(t, 2.0, config.RateLimit.BackoffMultiplier)
	assert.Equal(t, 60*time.Second, config.RateLimit.SafetyMargin)
	assert.Equal(t, 300*time.Second, config.RateLimit.MinThrottleWait)
	assert.Equal(t, 900*time.Second, config.RateLimit.DefaultThrottleWait)
	assert.Equal(t, 50, config.Output.BatchSize)
	assert.Equal(t, int64(500*1024*1024), config.Output.MaxBatchBytes())
	assert.Equal(t, "30 days", config.Extraction.DefaultDuration)
	assert.NoError(t, config.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TWEETPULL_AUTH_TOKEN", "token")
	t.Setenv("TWEETPULL_CT0", "csrf")
	t.Setenv("TWEETPULL_BASE_DELAY", "500ms")
	t.Setenv("TWEETPULL_BATCH_SIZE", "10")
	t.Setenv("TWEETPULL_LOG_LEVEL", "debug")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, "token", config.Twitter.AuthToken)
	assert.Equal(t, "csrf", config.Twitter.CSRFToken)
	assert.Equal(t, 500*time.Millisecond, config.RateLimit.BaseDelay)
	assert.Equal(t, 10, config.Output.BatchSize)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadFromEnvRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("TWEETPULL_BATCH_SIZE", "many")
	t.Setenv("TWEETPULL_BASE_DELAY", "soon")

	err := DefaultConfig().LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWEETPULL_BATCH_SIZE")
	assert.Contains(t, err.Error(), "TWEETPULL_BASE_DELAY")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tweetpull.yaml")
	content := `
rate_limit:
  base_delay: 3s
  max_retries: 2
  min_throttle_wait: 1m
output:
  batch_size: 25
  compression: zstd
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config := DefaultConfig()
	require.NoError(t, config.LoadFromFile(path))

	assert.Equal(t, 3*time.Second, config.RateLimit.BaseDelay)
	assert.Equal(t, 2, config.RateLimit.MaxRetries)
	assert.Equal(t, time.Minute, config.RateLimit.MinThrottleWait)
	assert.Equal(t, 25, config.Output.BatchSize)
	assert.Equal(t, "zstd", config.Output.Compression)
	assert.Equal(t, "warn", config.Logging.Level)
	// untouched keys keep defaults
	assert.Equal(t, 900*time.Second, config.RateLimit.DefaultThrottleWait)
}

func TestLoadFromFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output: [unclosed"), 0644))

	assert.Error(t, DefaultConfig().LoadFromFile(path))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "zero batch size", mutate: func(c *Config) { c.Output.BatchSize = 0 }, wantError: true},
		{name: "negative retries", mutate: func(c *Config) { c.RateLimit.MaxRetries = -1 }, wantError: true},
		{name: "shrinking multiplier", mutate: func(c *Config) { c.RateLimit.BackoffMultiplier = 0.5 }, wantError: true},
		{name: "unknown compression", mutate: func(c *Config) { c.Output.Compression = "lzma" }, wantError: true},
		{name: "invalid log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantError: true},
		{name: "page size too large", mutate: func(c *Config) { c.Twitter.PageSize = 500 }, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	original := DefaultConfig()
	original.Output.BatchSize = 77
	require.NoError(t, original.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 77, loaded.Output.BatchSize)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  batch_size: 20\nlogging:\n  level: warn\n"), 0644))

	t.Setenv("HOME", dir)
	t.Setenv("TWEETPULL_BATCH_SIZE", "30")

	config, err := Load(path, map[string]interface{}{"log-level": "error"})
	require.NoError(t, err)

	assert.Equal(t, 30, config.Output.BatchSize, "env overrides file")
	assert.Equal(t, "error", config.Logging.Level, "flags override file")
}

func TestLoadReportsValidationErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TWEETPULL_BATCH_SIZE", "-4")

	_, err := Load("", nil)
	require.Error(t, err)
}
