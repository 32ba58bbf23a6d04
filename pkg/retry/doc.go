// Package retry provides backoff strategies and a generic retry loop.
//
// The rate governor reuses ExponentialBackoff for transient failures and
// Wait for context-aware sleeping; the batch sink wraps part writes in Do.
//
//	err := retry.Do(func() error {
//		return writePart(path, rows)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.ConstantBackoff{Delay: 100 * time.Millisecond},
//		Logger:      log,
//	})
package retry
