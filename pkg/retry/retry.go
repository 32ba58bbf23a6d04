package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func() error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func() (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts including the first (0 means unlimited)
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry wait
	OnRetry func(attempt int, err error, delay time.Duration)
	Context context.Context
	Logger  logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
		Logger:      logger.NewNopLogger(),
	}
}

// DefaultRetryIf retries everything except cancellation and error kinds
// that cannot succeed on a second attempt
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pipelineErr *errs.Error
	if errors.As(err, &pipelineErr) {
		return errs.IsRetryable(pipelineErr.Kind)
	}

	return true
}

func (cfg *Config) withDefaults() *Config {
	c := *cfg
	if c.Backoff == nil {
		c.Backoff = DefaultExponentialBackoff()
	}
	if c.RetryIf == nil {
		c.RetryIf = DefaultRetryIf
	}
	if c.Context == nil {
		c.Context = context.Background()
	}
	if c.Logger == nil {
		c.Logger = logger.NewNopLogger()
	}
	return &c
}

// Do executes an operation with retry logic
func Do(op Operation, cfg *Config) error {
	_, err := DoWithResult(func() (struct{}, error) {
		return struct{}{}, op()
	}, cfg)
	return err
}

// DoWithResult executes an operation that returns a value with retry logic
func DoWithResult[T any](op OperationWithResult[T], cfg *Config) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		result, err := op()
		if err == nil {
			if attempt > 1 {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return result, nil
		}

		if !cfg.RetryIf(err) {
			return zero, err
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			cfg.Logger.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return zero, fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, err)
		}

		delay := cfg.Backoff.NextDelay(attempt - 1)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": cfg.MaxAttempts,
		})

		if waitErr := Wait(cfg.Context, delay); waitErr != nil {
			return zero, fmt.Errorf("retry cancelled: %w", waitErr)
		}
	}
}
