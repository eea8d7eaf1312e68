package backoff

import (
	"time"
)

// Backoff computes the wait duration before a given attempt.
// Attempt numbering starts at 1 for the wait preceding the second try.
type Backoff interface {
	Next(attempt uint) time.Duration
}

var _ Backoff = (*Fixed)(nil)

// Fixed waits the same interval between every attempt.
type Fixed struct {
	interval time.Duration
}

func NewFixed(d time.Duration) Fixed {
	return Fixed{
		interval: d,
	}
}

func (f Fixed) Next(_ uint) time.Duration {
	return f.interval
}
