package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

var _ Backoff = (*Exponential)(nil)

// Exponential grows the wait duration by a constant multiplier per attempt:
// initial * multiplier^(attempt-1), clamped to the configured maximum.
type Exponential struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	jitter          float64
}

type ExponentialOption func(*Exponential)

func WithMaxInterval(d time.Duration) ExponentialOption {
	return func(e *Exponential) {
		e.maxInterval = d
	}
}

func WithMultiplier(m float64) ExponentialOption {
	return func(e *Exponential) {
		e.multiplier = m
	}
}

// WithJitter randomizes each interval by up to +/- j of its value (0 <= j <= 1).
func WithJitter(j float64) ExponentialOption {
	return func(e *Exponential) {
		e.jitter = j
	}
}

func NewExponential(initial time.Duration, opts ...ExponentialOption) Exponential {
	e := Exponential{
		initialInterval: initial,
		maxInterval:     30 * time.Second,
		multiplier:      2.0,
		jitter:          0.0,
	}

	for _, opt := range opts {
		opt(&e)
	}

	return e
}

func (e Exponential) Next(attempt uint) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	interval := float64(e.initialInterval) * math.Pow(e.multiplier, float64(attempt-1))

	if e.jitter > 0 {
		offset := interval * e.jitter * (2*rand.Float64() - 1)
		interval = max(0, interval+offset)
	}

	if interval > float64(e.maxInterval) {
		interval = float64(e.maxInterval)
	}

	return time.Duration(interval)
}
