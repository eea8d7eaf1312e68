package circuitbreaker

import "time"

type CallOutcome int

const (
	OutcomeSuccess CallOutcome = iota
	OutcomeFailure
	OutcomeSlowSuccess
	OutcomeSlowFailure
)

func (o CallOutcome) isFailure() bool {
	return o == OutcomeFailure || o == OutcomeSlowFailure
}

func (o CallOutcome) isSlow() bool {
	return o == OutcomeSlowSuccess || o == OutcomeSlowFailure
}

// Window records recent call outcomes and reports rolling rates over them.
// Implementations are not safe for concurrent use on their own; the circuit
// breaker owning a window serializes all access under its lock.
type Window interface {
	// Size returns the number of calls currently held by the window.
	Size() int

	RecordOutcome(CallOutcome)

	// CallRates returns the total number of recorded calls together with the
	// failure rate and slow call rate as percentages of that total.
	CallRates() (totalCalls int, failureRate, slowRate float64)

	Reset()
}

// WindowType selects the sliding window variant at construction time.
type WindowType string

const (
	// WindowTypeCount aggregates the outcomes of the last N calls.
	WindowTypeCount WindowType = "COUNT_BASED"

	// WindowTypeTime aggregates the outcomes of the last N seconds.
	WindowTypeTime WindowType = "TIME_BASED"
)

// NewWindow builds a window of the given type; size is a call count for
// WindowTypeCount and a number of seconds for WindowTypeTime.
func NewWindow(t WindowType, size int) Window {
	if t == WindowTypeTime {
		return NewTimeWindow(time.Duration(size) * time.Second)
	}
	return NewCountWindow(size)
}
