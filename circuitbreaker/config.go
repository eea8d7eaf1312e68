package circuitbreaker

import (
	"time"
)

type Config struct {
	Window Window

	Metrics Metrics

	// MinimumNumberOfCalls is the number of recorded calls required before
	// the breaker evaluates the failure rate and slow call rate. Below this
	// the breaker never trips, regardless of the rates.
	MinimumNumberOfCalls int

	// FailureRateThreshold is the failure rate percentage at or above which
	// the breaker trips from CLOSED to OPEN.
	FailureRateThreshold float64

	// SlowCallRateThreshold is the slow call rate percentage at or above
	// which the breaker trips from CLOSED to OPEN.
	SlowCallRateThreshold float64

	// SlowCallDurationThreshold is the duration at or above which a call
	// counts as slow.
	SlowCallDurationThreshold time.Duration

	// RecordErrors is the set of error kinds counted as failures. When
	// non-empty, any error not matching the set counts as a success.
	RecordErrors []error

	// IgnoreErrors is the set of error kinds excluded from the window
	// entirely, counting as neither success nor failure.
	IgnoreErrors []error

	// TransitionListener is invoked, outside the breaker lock, after every
	// state transition.
	TransitionListener TransitionListener
}

// TransitionListener observes breaker state changes; transitions are
// observable events and carry no other side effect.
type TransitionListener func(StateTransition)

type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Window:                    NewCountWindow(100),
		MinimumNumberOfCalls:      100,
		FailureRateThreshold:      50.0,
		SlowCallRateThreshold:     100.0,
		SlowCallDurationThreshold: 60 * time.Second,
	}
}

func WithWindow(window Window) Option {
	return func(c *Config) {
		c.Window = window
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

func WithMinimumNumberOfCalls(n int) Option {
	return func(c *Config) {
		c.MinimumNumberOfCalls = n
	}
}

func WithFailureRateThreshold(threshold float64) Option {
	return func(c *Config) {
		c.FailureRateThreshold = threshold
	}
}

func WithSlowCallRateThreshold(threshold float64) Option {
	return func(c *Config) {
		c.SlowCallRateThreshold = threshold
	}
}

func WithSlowCallDurationThreshold(duration time.Duration) Option {
	return func(c *Config) {
		c.SlowCallDurationThreshold = duration
	}
}

func WithRecordErrors(errors ...error) Option {
	return func(c *Config) {
		c.RecordErrors = errors
	}
}

func WithIgnoreErrors(errors ...error) Option {
	return func(c *Config) {
		c.IgnoreErrors = errors
	}
}

func WithTransitionListener(listener TransitionListener) Option {
	return func(c *Config) {
		c.TransitionListener = listener
	}
}
