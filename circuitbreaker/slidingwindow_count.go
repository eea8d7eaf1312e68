package circuitbreaker

import (
	"container/ring"
)

var _ Window = (*CountWindow)(nil)

// CountWindow keeps the outcomes of the last N calls in a ring and maintains
// aggregate counters so rates are computed without walking the ring.
type CountWindow struct {
	ring *ring.Ring

	totalCount   int
	failureCount int
	slowCount    int
}

func NewCountWindow(size int) *CountWindow {
	return &CountWindow{
		ring: ring.New(size),
	}
}

func (w *CountWindow) RecordOutcome(outcome CallOutcome) {
	if evicted, ok := w.ring.Value.(CallOutcome); ok {
		w.totalCount--
		if evicted.isFailure() {
			w.failureCount--
		}
		if evicted.isSlow() {
			w.slowCount--
		}
	}

	w.ring.Value = outcome
	w.totalCount++
	if outcome.isFailure() {
		w.failureCount++
	}
	if outcome.isSlow() {
		w.slowCount++
	}

	w.ring = w.ring.Next()
}

func (w *CountWindow) Size() int {
	return w.totalCount
}

func (w *CountWindow) Reset() {
	w.ring = ring.New(w.ring.Len())
	w.totalCount = 0
	w.failureCount = 0
	w.slowCount = 0
}

func (w *CountWindow) CallRates() (int, float64, float64) {
	if w.totalCount == 0 {
		return 0, 0, 0
	}

	failureRate := float64(w.failureCount) / float64(w.totalCount) * 100
	slowRate := float64(w.slowCount) / float64(w.totalCount) * 100

	return w.totalCount, failureRate, slowRate
}
