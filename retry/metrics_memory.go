package retry

import (
	"context"
	"sync/atomic"
	"time"
)

var _ Metrics = (*InMemoryMetrics)(nil)

// InMemoryMetrics accumulates retry counters in process memory, for tests
// and demos where a meter pipeline is overkill. Installed as the global
// reporter, it aggregates across every endpoint's policy. Exhausted
// sequences get their own counter: an exhausted sequence is what an
// endpoint's circuit breaker records as a failure, so this number tracks
// how hard the breakers are being pushed toward tripping.
type InMemoryMetrics struct {
	attempts        atomic.Int64
	attemptFailures atomic.Int64
	attemptMillis   atomic.Int64

	sequences          atomic.Int64
	sequenceFailures   atomic.Int64
	sequencesExhausted atomic.Int64

	backoffMillis atomic.Int64
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{}
}

func (m *InMemoryMetrics) RecordAttempt(_ context.Context, attempt Attempt) {
	m.attempts.Add(1)
	if !attempt.IsSuccess() {
		m.attemptFailures.Add(1)
	}
	m.attemptMillis.Add(attempt.Duration.Milliseconds())
}

func (m *InMemoryMetrics) RecordOutcome(_ context.Context, outcome Outcome) {
	m.sequences.Add(1)
	if !outcome.IsSuccess() {
		m.sequenceFailures.Add(1)
		if outcome.FailureReason == OutcomeFailureReasonExhausted {
			m.sequencesExhausted.Add(1)
		}
	}
}

func (m *InMemoryMetrics) RecordBackoff(_ context.Context, _ string, _ int, duration time.Duration) {
	m.backoffMillis.Add(duration.Milliseconds())
}

// Snapshot returns the current counter values keyed by name.
func (m *InMemoryMetrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"attempts":            m.attempts.Load(),
		"attempt_failures":    m.attemptFailures.Load(),
		"attempt_millis":      m.attemptMillis.Load(),
		"sequences":           m.sequences.Load(),
		"sequence_failures":   m.sequenceFailures.Load(),
		"sequences_exhausted": m.sequencesExhausted.Load(),
		"backoff_millis":      m.backoffMillis.Load(),
	}
}
