package circuitbreaker

import (
	"time"
)

var _ Window = (*TimeWindow)(nil)

type timeBucket struct {
	epochSecond int64

	totalCount   int
	failureCount int
	slowCount    int
}

// TimeWindow aggregates the outcomes of calls made during the last span of
// wall-clock time, bucketed per second. Buckets older than the span are
// discarded lazily as calls are recorded and rates are read.
type TimeWindow struct {
	buckets []timeBucket
	span    time.Duration

	now func() time.Time
}

func NewTimeWindow(span time.Duration) *TimeWindow {
	seconds := int(span / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	return &TimeWindow{
		buckets: make([]timeBucket, seconds),
		span:    span,
		now:     time.Now,
	}
}

func (w *TimeWindow) bucketFor(sec int64) *timeBucket {
	b := &w.buckets[sec%int64(len(w.buckets))]
	if b.epochSecond != sec {
		*b = timeBucket{epochSecond: sec}
	}
	return b
}

func (w *TimeWindow) RecordOutcome(outcome CallOutcome) {
	b := w.bucketFor(w.now().Unix())

	b.totalCount++
	if outcome.isFailure() {
		b.failureCount++
	}
	if outcome.isSlow() {
		b.slowCount++
	}
}

func (w *TimeWindow) Size() int {
	total, _, _ := w.CallRates()
	return total
}

func (w *TimeWindow) Reset() {
	for i := range w.buckets {
		w.buckets[i] = timeBucket{}
	}
}

func (w *TimeWindow) CallRates() (int, float64, float64) {
	oldest := w.now().Unix() - int64(len(w.buckets)) + 1

	var total, failures, slow int
	for i := range w.buckets {
		b := &w.buckets[i]
		if b.epochSecond < oldest {
			continue
		}
		total += b.totalCount
		failures += b.failureCount
		slow += b.slowCount
	}

	if total == 0 {
		return 0, 0, 0
	}

	failureRate := float64(failures) / float64(total) * 100
	slowRate := float64(slow) / float64(total) * 100

	return total, failureRate, slowRate
}
