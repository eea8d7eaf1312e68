package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateForcedOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateForcedOpen:
		return "FORCED_OPEN"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrOpenState       = errors.New("circuitbreaker: open state")
	ErrForcedOpenState = errors.New("circuitbreaker: forced open state")
)

func IsCallNotPermittedError(err error) bool {
	return errors.Is(err, ErrOpenState) || errors.Is(err, ErrForcedOpenState)
}

// CircuitBreaker is a per-resource CLOSED/OPEN/FORCED_OPEN state machine.
// It trips from CLOSED to OPEN when the failure rate or slow call rate over
// its sliding window exceeds the configured thresholds. There is no half-open
// state and no timer: once OPEN, the only way back to CLOSED is an explicit
// TransitionToClosed. FORCED_OPEN is an administrative state that rejects all
// calls regardless of recorded rates.
type CircuitBreaker interface {
	Name() string
	State() State

	// TransitionToClosed forces the breaker into CLOSED and clears the
	// recorded window, permitting calls again.
	TransitionToClosed()

	// TransitionToForcedOpen puts the breaker into the administrative
	// FORCED_OPEN state, rejecting all calls until explicitly closed.
	TransitionToForcedOpen()

	before(ctx context.Context) error
	after(ctx context.Context, err error, duration time.Duration)
}

var _ CircuitBreaker = (*circuitBreakerImpl)(nil)

type circuitBreakerImpl struct {
	name   string
	config Config

	mu     sync.Mutex
	window Window
	state  State
}

func New(name string, opts ...Option) CircuitBreaker {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &circuitBreakerImpl{
		name:   name,
		config: config,
		window: config.Window,
		state:  StateClosed,
	}
}

func (cb *circuitBreakerImpl) Name() string {
	return cb.name
}

func (cb *circuitBreakerImpl) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *circuitBreakerImpl) TransitionToClosed() {
	cb.transitionTo(StateClosed)
}

func (cb *circuitBreakerImpl) TransitionToForcedOpen() {
	cb.transitionTo(StateForcedOpen)
}

func (cb *circuitBreakerImpl) transitionTo(state State) {
	cb.mu.Lock()
	transition := cb.setStateLocked(state)
	cb.mu.Unlock()

	cb.publishTransition(context.Background(), transition)
}

// setStateLocked moves the state machine and clears the window so the new
// state starts from a fresh sample. Returns nil when nothing changed.
func (cb *circuitBreakerImpl) setStateLocked(state State) *StateTransition {
	if cb.state == state {
		return nil
	}

	transition := &StateTransition{
		Name:      cb.name,
		FromState: cb.state,
		ToState:   state,
		Timestamp: time.Now(),
	}

	cb.state = state
	cb.window.Reset()

	return transition
}

func (cb *circuitBreakerImpl) publishTransition(ctx context.Context, transition *StateTransition) {
	if transition == nil {
		return
	}

	cb.metricsReporter().RecordStateTransition(ctx, *transition)

	if cb.config.TransitionListener != nil {
		cb.config.TransitionListener(*transition)
	}
}

func (cb *circuitBreakerImpl) before(ctx context.Context) error {
	cb.mu.Lock()
	state := cb.state
	cb.mu.Unlock()

	var rejection error
	switch state {
	case StateOpen:
		rejection = ErrOpenState
	case StateForcedOpen:
		rejection = ErrForcedOpenState
	default:
		return nil
	}

	cb.metricsReporter().RecordCallRejection(ctx, CallRejection{
		Name:  cb.name,
		State: state,
		Error: rejection,
	})

	return rejection
}

func (cb *circuitBreakerImpl) after(ctx context.Context, err error, duration time.Duration) {
	outcome, ignored := cb.classifyOutcome(err, duration)
	if ignored {
		return
	}

	cb.mu.Lock()
	cb.window.RecordOutcome(outcome)

	var transition *StateTransition
	total, failureRate, slowRate := cb.window.CallRates()
	if cb.state == StateClosed && total >= cb.config.MinimumNumberOfCalls &&
		(failureRate >= cb.config.FailureRateThreshold || slowRate >= cb.config.SlowCallRateThreshold) {
		transition = cb.setStateLocked(StateOpen)
	}
	cb.mu.Unlock()

	metrics := cb.metricsReporter()
	metrics.RecordCallResult(ctx, CallResult{
		Name:     cb.name,
		Outcome:  outcome,
		Duration: duration,
		Error:    err,
	})
	metrics.RecordCallRates(ctx, CallRates{
		Name:         cb.name,
		FailureRate:  failureRate,
		SlowCallRate: slowRate,
		TotalCalls:   total,
	})

	cb.publishTransition(ctx, transition)
}

// classifyOutcome maps an error and duration onto a window outcome.
// Ignored errors count as neither success nor failure. When a record
// allowlist is configured, errors outside it count as successes.
func (cb *circuitBreakerImpl) classifyOutcome(err error, duration time.Duration) (CallOutcome, bool) {
	slow := duration >= cb.config.SlowCallDurationThreshold

	failure := false
	if err != nil {
		for _, ignoreErr := range cb.config.IgnoreErrors {
			if errors.Is(err, ignoreErr) {
				return 0, true
			}
		}

		if len(cb.config.RecordErrors) == 0 {
			failure = true
		} else {
			for _, recordErr := range cb.config.RecordErrors {
				if errors.Is(err, recordErr) {
					failure = true
					break
				}
			}
		}
	}

	switch {
	case failure && slow:
		return OutcomeSlowFailure, false
	case failure:
		return OutcomeFailure, false
	case slow:
		return OutcomeSlowSuccess, false
	default:
		return OutcomeSuccess, false
	}
}

func (cb *circuitBreakerImpl) metricsReporter() Metrics {
	if cb.config.Metrics != nil {
		return cb.config.Metrics
	}

	return GetGlobalMetrics()
}
