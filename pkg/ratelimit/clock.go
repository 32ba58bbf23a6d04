package ratelimit

import (
	"context"
	"time"

	"tweetpull/pkg/retry"
)

// Clock abstracts time so waits can be driven deterministically in tests
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	return retry.Wait(ctx, d)
}

// SystemClock returns the wall clock
func SystemClock() Clock { return systemClock{} }
