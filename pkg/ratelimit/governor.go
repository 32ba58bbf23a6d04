package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tweetpull/pkg/config"
	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/logger"
	"tweetpull/pkg/retry"
)

// OutcomeKind classifies the result of one fetch attempt
type OutcomeKind int

const (
	Success OutcomeKind = iota
	Throttled
	Transient
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Throttled:
		return "throttled"
	case Transient:
		return "transient"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome reports one fetch attempt to the governor
type Outcome struct {
	Kind OutcomeKind
	// ResetAt is the source-reported instant the throttle lifts; zero if unknown
	ResetAt time.Time
	// Err is the underlying failure for Throttled and Transient outcomes
	Err error
}

// Settings tunes the governor
type Settings struct {
	BaseDelay           time.Duration
	BackoffMultiplier   float64
	MaxRetries          int
	SafetyMargin        time.Duration
	MinThrottleWait     time.Duration
	DefaultThrottleWait time.Duration
}

// SettingsFromConfig maps the rate_limit config section onto Settings
func SettingsFromConfig(cfg config.RateLimitConfig) Settings {
	return Settings{
		BaseDelay:           cfg.BaseDelay,
		BackoffMultiplier:   cfg.BackoffMultiplier,
		MaxRetries:          cfg.MaxRetries,
		SafetyMargin:        cfg.SafetyMargin,
		MinThrottleWait:     cfg.MinThrottleWait,
		DefaultThrottleWait: cfg.DefaultThrottleWait,
	}
}

// State is the governor's in-memory bookkeeping
type State struct {
	// ConsecutiveFailures counts throttles and transient failures since the
	// last success against MaxRetries
	ConsecutiveFailures int
	// TransientFailures drives the exponential backoff; throttles do not
	// advance it
	TransientFailures int
	NextAllowed       time.Time
	LastDelay         time.Duration
}

// Governor paces outbound requests and turns failures into wait decisions.
// BeforeRequest must precede every fetch and OnResult must follow it.
type Governor struct {
	settings Settings
	clock    Clock
	logger   logger.Logger
	limiter  *rate.Limiter
	backoff  *retry.ExponentialBackoff

	mu    sync.Mutex
	state State
}

// Option configures a Governor
type Option func(*Governor)

// WithClock substitutes the time source
func WithClock(c Clock) Option {
	return func(g *Governor) { g.clock = c }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(g *Governor) { g.logger = l }
}

// New creates a Governor
func New(settings Settings, opts ...Option) *Governor {
	g := &Governor{
		settings: settings,
		clock:    SystemClock(),
		logger:   logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}

	limit := rate.Inf
	if settings.BaseDelay > 0 {
		limit = rate.Every(settings.BaseDelay)
	}
	g.limiter = rate.NewLimiter(limit, 1)

	multiplier := settings.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	g.backoff = &retry.ExponentialBackoff{
		BaseDelay:  settings.BaseDelay,
		Multiplier: multiplier,
	}
	return g
}

// BeforeRequest suspends until the next request is permitted: after any
// pending backoff and at least BaseDelay after the previous request.
func (g *Governor) BeforeRequest(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	now := g.clock.Now()
	sendAt := now
	if g.state.NextAllowed.After(now) {
		sendAt = g.state.NextAllowed
	}
	reservation := g.limiter.ReserveN(sendAt, 1)
	sendAt = sendAt.Add(reservation.DelayFrom(sendAt))
	g.mu.Unlock()

	wait := sendAt.Sub(now)
	if wait <= 0 {
		return nil
	}

	g.logger.DebugWithFields("waiting before request", map[string]interface{}{
		"wait": wait,
	})
	if err := g.clock.Sleep(ctx, wait); err != nil {
		reservation.CancelAt(g.clock.Now())
		return err
	}
	return nil
}

// OnResult records the outcome of the last attempt. A nil return means the
// caller may retry (after the next BeforeRequest); otherwise the retry budget
// is spent and the returned error is RateLimitExhausted or
// TransientFailureExhausted.
func (g *Governor) OnResult(outcome Outcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()

	switch outcome.Kind {
	case Success:
		g.state.ConsecutiveFailures = 0
		g.state.TransientFailures = 0
		g.state.LastDelay = 0
		return nil

	case Throttled:
		g.state.ConsecutiveFailures++
		if g.state.ConsecutiveFailures > g.settings.MaxRetries {
			return errs.Wrap(errs.KindRateLimitExhausted, outcome.Err,
				fmt.Sprintf("still throttled after %d retries", g.settings.MaxRetries))
		}
		wait := g.throttleWait(now, outcome.ResetAt)
		g.schedule(now, wait)
		logger.LogThrottle(g.logger, "throttled", wait, g.state.ConsecutiveFailures)
		return nil

	case Transient:
		attempt := g.state.TransientFailures
		g.state.TransientFailures++
		g.state.ConsecutiveFailures++
		if g.state.ConsecutiveFailures > g.settings.MaxRetries {
			return errs.Wrap(errs.KindTransientFailureExhausted, outcome.Err,
				fmt.Sprintf("request failed %d times", g.state.ConsecutiveFailures))
		}
		wait := g.backoff.NextDelay(attempt)
		g.schedule(now, wait)
		g.logger.WithError(outcome.Err).WarnWithFields("transient failure, backing off", map[string]interface{}{
			"wait":     wait,
			"failures": g.state.ConsecutiveFailures,
		})
		return nil

	default:
		return fmt.Errorf("unknown outcome kind %v", outcome.Kind)
	}
}

// throttleWait honors a reported reset instant plus the safety margin, never
// less than MinThrottleWait; without a reset instant it uses DefaultThrottleWait
func (g *Governor) throttleWait(now, resetAt time.Time) time.Duration {
	if resetAt.IsZero() {
		return g.settings.DefaultThrottleWait
	}
	wait := resetAt.Add(g.settings.SafetyMargin).Sub(now)
	if wait < g.settings.MinThrottleWait {
		wait = g.settings.MinThrottleWait
	}
	return wait
}

func (g *Governor) schedule(now time.Time, wait time.Duration) {
	g.state.NextAllowed = now.Add(wait)
	g.state.LastDelay = wait
}

// State returns a snapshot of the bookkeeping
func (g *Governor) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Reset clears failures and pending waits
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = State{}
}
