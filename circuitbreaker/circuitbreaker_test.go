package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// record feeds an outcome straight into the breaker, bypassing Execute, so
// tests control the observed call duration.
func record(cb CircuitBreaker, err error, duration time.Duration) {
	cb.after(context.Background(), err, duration)
}

func TestCircuitBreaker_NeverTripsBelowMinimumCalls(t *testing.T) {
	cb := New("test",
		WithWindow(NewCountWindow(10)),
		WithMinimumNumberOfCalls(10),
		WithFailureRateThreshold(50),
	)

	// 9 failures out of 9 calls: 100% failure rate, but below the minimum.
	for i := 0; i < 9; i++ {
		record(cb, errBoom, 0)
	}

	require.Equal(t, StateClosed, cb.State())

	record(cb, errBoom, 0)
	require.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_FailureRateThreshold(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		successes int
		wantState State
	}{
		{name: "50 percent trips", failures: 5, successes: 5, wantState: StateOpen},
		{name: "40 percent stays closed", failures: 4, successes: 6, wantState: StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := New("test",
				WithWindow(NewCountWindow(10)),
				WithMinimumNumberOfCalls(10),
				WithFailureRateThreshold(50),
			)

			for i := 0; i < tt.failures; i++ {
				record(cb, errBoom, 0)
			}
			for i := 0; i < tt.successes; i++ {
				record(cb, nil, 0)
			}

			require.Equal(t, tt.wantState, cb.State())
		})
	}
}

func TestCircuitBreaker_SlowCallRateThreshold(t *testing.T) {
	cb := New("test",
		WithWindow(NewCountWindow(10)),
		WithMinimumNumberOfCalls(4),
		WithFailureRateThreshold(100),
		WithSlowCallRateThreshold(75),
		WithSlowCallDurationThreshold(100*time.Millisecond),
	)

	record(cb, nil, 50*time.Millisecond)
	record(cb, nil, 200*time.Millisecond)
	record(cb, nil, 300*time.Millisecond)
	require.Equal(t, StateClosed, cb.State())

	record(cb, nil, 100*time.Millisecond)
	require.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_OpenRejectsCalls(t *testing.T) {
	cb := New("test",
		WithWindow(NewCountWindow(2)),
		WithMinimumNumberOfCalls(1),
		WithFailureRateThreshold(50),
	)

	err := Do(context.Background(), cb, func(context.Context) error { return errBoom })
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, StateOpen, cb.State())

	called := false
	err = Do(context.Background(), cb, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrOpenState)
	require.True(t, IsCallNotPermittedError(err))
	require.False(t, called)
}

func TestCircuitBreaker_NoAutomaticRecovery(t *testing.T) {
	cb := New("test",
		WithWindow(NewCountWindow(2)),
		WithMinimumNumberOfCalls(1),
		WithFailureRateThreshold(50),
	)

	record(cb, errBoom, 0)
	require.Equal(t, StateOpen, cb.State())

	// No timer or half-open transition exists; only an explicit close
	// re-permits calls.
	record(cb, nil, 0)
	record(cb, nil, 0)
	require.Equal(t, StateOpen, cb.State())

	cb.TransitionToClosed()
	require.Equal(t, StateClosed, cb.State())
	require.NoError(t, Do(context.Background(), cb, func(context.Context) error { return nil }))
}

func TestCircuitBreaker_ForcedOpen(t *testing.T) {
	cb := New("test")

	cb.TransitionToForcedOpen()
	require.Equal(t, StateForcedOpen, cb.State())

	err := Do(context.Background(), cb, func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrForcedOpenState)
	require.True(t, IsCallNotPermittedError(err))

	cb.TransitionToClosed()
	require.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_IgnoredErrorsAreNotRecorded(t *testing.T) {
	ignored := errors.New("ignored")
	cb := New("test",
		WithWindow(NewCountWindow(10)),
		WithMinimumNumberOfCalls(1),
		WithFailureRateThreshold(50),
		WithIgnoreErrors(ignored),
	)

	for i := 0; i < 5; i++ {
		record(cb, ignored, 0)
	}

	impl := cb.(*circuitBreakerImpl)
	require.Zero(t, impl.window.Size())
	require.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_RecordAllowlist(t *testing.T) {
	recorded := errors.New("recorded")
	other := errors.New("other")
	cb := New("test",
		WithWindow(NewCountWindow(10)),
		WithMinimumNumberOfCalls(2),
		WithFailureRateThreshold(100),
		WithRecordErrors(recorded),
	)

	// Errors outside the allowlist count as successes.
	record(cb, other, 0)
	record(cb, other, 0)
	require.Equal(t, StateClosed, cb.State())

	record(cb, recorded, 0)
	record(cb, recorded, 0)
	// 2 failures out of 4 calls: 50% < 100%, still closed.
	require.Equal(t, StateClosed, cb.State())

	impl := cb.(*circuitBreakerImpl)
	total, failureRate, _ := impl.window.CallRates()
	require.Equal(t, 4, total)
	require.InDelta(t, 50.0, failureRate, 0.001)
}

func TestCircuitBreaker_TransitionListener(t *testing.T) {
	var mu sync.Mutex
	var transitions []StateTransition

	cb := New("test",
		WithWindow(NewCountWindow(2)),
		WithMinimumNumberOfCalls(1),
		WithFailureRateThreshold(50),
		WithTransitionListener(func(tr StateTransition) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, tr)
		}),
	)

	record(cb, errBoom, 0)
	cb.TransitionToClosed()
	cb.TransitionToForcedOpen()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 3)
	require.Equal(t, StateClosed, transitions[0].FromState)
	require.Equal(t, StateOpen, transitions[0].ToState)
	require.Equal(t, StateOpen, transitions[1].FromState)
	require.Equal(t, StateClosed, transitions[1].ToState)
	require.Equal(t, StateForcedOpen, transitions[2].ToState)
}

func TestCircuitBreaker_PanicCapture(t *testing.T) {
	cb := New("test")

	err := Do(context.Background(), cb, func(context.Context) error {
		panic("kaboom")
	})
	require.Error(t, err)
	require.True(t, IsPanicError(err))
}

func TestCircuitBreaker_ConcurrentRecordingLosesNoUpdates(t *testing.T) {
	const (
		workers        = 16
		callsPerWorker = 500
	)

	cb := New("test",
		WithWindow(NewCountWindow(workers*callsPerWorker)),
		WithMinimumNumberOfCalls(workers*callsPerWorker+1),
	)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerWorker; j++ {
				_ = Do(context.Background(), cb, func(context.Context) error { return nil })
			}
		}()
	}
	wg.Wait()

	impl := cb.(*circuitBreakerImpl)
	require.Equal(t, workers*callsPerWorker, impl.window.Size())
	require.Equal(t, StateClosed, cb.State())
}
