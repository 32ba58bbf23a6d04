package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) totalSlept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.sleeps {
		total += d
	}
	return total
}

func defaultSettings() Settings {
	return Settings{
		BaseDelay:           2 * time.Second,
		BackoffMultiplier:   2.0,
		MaxRetries:          5,
		SafetyMargin:        60 * time.Second,
		MinThrottleWait:     300 * time.Second,
		DefaultThrottleWait: 900 * time.Second,
	}
}

func TestBaselineDelayBetweenSuccesses(t *testing.T) {
	clock := newFakeClock()
	gov := New(defaultSettings(), WithClock(clock))
	ctx := context.Background()

	require.NoError(t, gov.BeforeRequest(ctx))
	assert.Equal(t, time.Duration(0), clock.totalSlept(), "first request is immediate")
	require.NoError(t, gov.OnResult(Outcome{Kind: Success}))

	require.NoError(t, gov.BeforeRequest(ctx))
	assert.InDelta(t, 2.0, clock.totalSlept().Seconds(), 0.001)

	clock.advance(10 * time.Second)
	before := clock.totalSlept()
	require.NoError(t, gov.BeforeRequest(ctx))
	assert.Equal(t, before, clock.totalSlept(), "no wait once the baseline has elapsed")
}

func TestThrottleWithResetInstant(t *testing.T) {
	clock := newFakeClock()
	gov := New(defaultSettings(), WithClock(clock))
	ctx := context.Background()

	start := clock.Now()
	reset := start.Add(120 * time.Second)
	require.NoError(t, gov.BeforeRequest(ctx))
	require.NoError(t, gov.OnResult(Outcome{Kind: Throttled, ResetAt: reset}))

	require.NoError(t, gov.BeforeRequest(ctx))
	assert.False(t, clock.Now().Before(reset.Add(60*time.Second)), "must wait at least reset + margin")
	// the 300s floor dominates 120s + 60s
	assert.Equal(t, start.Add(300*time.Second), clock.Now())
}

func TestThrottleResetBeyondFloor(t *testing.T) {
	clock := newFakeClock()
	gov := New(defaultSettings(), WithClock(clock))

	start := clock.Now()
	reset := start.Add(10 * time.Minute)
	require.NoError(t, gov.OnResult(Outcome{Kind: Throttled, ResetAt: reset}))
	require.NoError(t, gov.BeforeRequest(context.Background()))

	assert.Equal(t, reset.Add(60*time.Second), clock.Now())
	assert.Equal(t, 11*time.Minute, gov.State().LastDelay)
}

func TestThrottleWithoutResetUsesDefault(t *testing.T) {
	clock := newFakeClock()
	gov := New(defaultSettings(), WithClock(clock))

	start := clock.Now()
	require.NoError(t, gov.OnResult(Outcome{Kind: Throttled}))
	require.NoError(t, gov.BeforeRequest(context.Background()))

	assert.Equal(t, start.Add(900*time.Second), clock.Now())
}

func TestTransientBackoffSequence(t *testing.T) {
	clock := newFakeClock()
	gov := New(defaultSettings(), WithClock(clock))

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second}
	for i, expected := range want {
		require.NoError(t, gov.OnResult(Outcome{Kind: Transient, Err: errors.New("reset by peer")}), "failure %d", i+1)
		assert.Equal(t, expected, gov.State().LastDelay)
	}

	err := gov.OnResult(Outcome{Kind: Transient, Err: errors.New("reset by peer")})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrTransientFailureExhausted)
}

func TestThrottleExhaustion(t *testing.T) {
	settings := defaultSettings()
	settings.MaxRetries = 2
	gov := New(settings, WithClock(newFakeClock()))

	require.NoError(t, gov.OnResult(Outcome{Kind: Throttled}))
	require.NoError(t, gov.OnResult(Outcome{Kind: Throttled}))
	err := gov.OnResult(Outcome{Kind: Throttled})
	assert.ErrorIs(t, err, errs.ErrRateLimitExhausted)
}

func TestSuccessResetsFailures(t *testing.T) {
	settings := defaultSettings()
	settings.MaxRetries = 1
	gov := New(settings, WithClock(newFakeClock()))

	require.NoError(t, gov.OnResult(Outcome{Kind: Transient}))
	require.NoError(t, gov.OnResult(Outcome{Kind: Success}))
	assert.Equal(t, 0, gov.State().ConsecutiveFailures)

	require.NoError(t, gov.OnResult(Outcome{Kind: Transient}), "budget restored after success")
	assert.Equal(t, 2*time.Second, gov.State().LastDelay, "backoff restarts at attempt 0")
}

func TestThrottlesDoNotAdvanceTransientBackoff(t *testing.T) {
	gov := New(defaultSettings(), WithClock(newFakeClock()))

	require.NoError(t, gov.OnResult(Outcome{Kind: Throttled}))
	require.NoError(t, gov.OnResult(Outcome{Kind: Throttled}))
	require.NoError(t, gov.OnResult(Outcome{Kind: Transient, Err: errors.New("reset by peer")}))
	assert.Equal(t, 2*time.Second, gov.State().LastDelay, "first transient failure waits BaseDelay")
	assert.Equal(t, 3, gov.State().ConsecutiveFailures, "throttles still spend the retry budget")

	require.NoError(t, gov.OnResult(Outcome{Kind: Transient, Err: errors.New("reset by peer")}))
	assert.Equal(t, 4*time.Second, gov.State().LastDelay)
}

func TestZeroMaxRetriesFailsImmediately(t *testing.T) {
	settings := defaultSettings()
	settings.MaxRetries = 0
	gov := New(settings, WithClock(newFakeClock()))

	assert.ErrorIs(t, gov.OnResult(Outcome{Kind: Transient}), errs.ErrTransientFailureExhausted)
}

func TestBeforeRequestInterruptedByCancellation(t *testing.T) {
	gov := New(defaultSettings(), WithLogger(logger.NewNopLogger()))
	require.NoError(t, gov.OnResult(Outcome{Kind: Throttled}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := gov.BeforeRequest(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestBeforeRequestAlreadyCancelled(t *testing.T) {
	gov := New(defaultSettings(), WithClock(newFakeClock()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, gov.BeforeRequest(ctx), context.Canceled)
}

func TestReset(t *testing.T) {
	clock := newFakeClock()
	gov := New(defaultSettings(), WithClock(clock))
	require.NoError(t, gov.OnResult(Outcome{Kind: Throttled}))

	gov.Reset()
	assert.Equal(t, State{}, gov.State())
}

func TestThrottleLogged(t *testing.T) {
	tl := logger.NewTestLogger()
	gov := New(defaultSettings(), WithClock(newFakeClock()), WithLogger(tl))

	require.NoError(t, gov.OnResult(Outcome{Kind: Throttled}))
	assert.True(t, tl.HasMessage("Rate limited, backing off"))
}
