package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/redisfailover/backoff"
	"github.com/kestrelworks/redisfailover/circuitbreaker"
)

var (
	errConnRefused = errors.New("connection refused")
	errBadRequest  = errors.New("bad request")
)

func TestNewPolicy_Defaults(t *testing.T) {
	p, err := NewPolicy("default")
	require.NoError(t, err)

	require.Equal(t, "default", p.Name())
	require.Equal(t, 3, p.MaxAttempts())
	require.Zero(t, p.AttemptTimeout())

	// Exponential backoff starting at 500ms, doubling per attempt.
	require.Equal(t, 500*time.Millisecond, p.Backoff().Next(1))
	require.Equal(t, time.Second, p.Backoff().Next(2))
	require.Equal(t, 2*time.Second, p.Backoff().Next(3))
}

func TestNewPolicy_Validation(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
		field   string
	}{
		{
			name:    "zero attempts",
			options: []Option{WithMaxAttempts(0)},
			field:   "maxAttempts",
		},
		{
			name:    "negative attempts",
			options: []Option{WithMaxAttempts(-1)},
			field:   "maxAttempts",
		},
		{
			name:    "nil backoff",
			options: []Option{WithBackoff(nil)},
			field:   "backoff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy("test", tt.options...)
			require.Error(t, err)
			require.True(t, IsValidationError(err))

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestPolicy_ShouldRetryError(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
		err     error
		want    bool
	}{
		{
			name: "nil error never retries",
			err:  nil,
			want: false,
		},
		{
			name: "any error retries by default",
			err:  errConnRefused,
			want: true,
		},
		{
			name:    "ignored error does not retry",
			options: []Option{WithIgnoreErrors(errBadRequest)},
			err:     errBadRequest,
			want:    false,
		},
		{
			name:    "wrapped ignored error does not retry",
			options: []Option{WithIgnoreErrors(errBadRequest)},
			err:     fmt.Errorf("handler: %w", errBadRequest),
			want:    false,
		},
		{
			name:    "allowlisted error retries",
			options: []Option{WithRetryErrors(errConnRefused)},
			err:     errConnRefused,
			want:    true,
		},
		{
			name:    "error outside allowlist does not retry",
			options: []Option{WithRetryErrors(errConnRefused)},
			err:     errBadRequest,
			want:    false,
		},
		{
			name: "ignore list wins over allowlist",
			options: []Option{
				WithRetryErrors(errConnRefused),
				WithIgnoreErrors(errConnRefused),
			},
			err:  errConnRefused,
			want: false,
		},
		{
			name: "predicate overrides both lists",
			options: []Option{
				WithRetryErrors(errConnRefused),
				WithIgnoreErrors(errBadRequest),
				WithRetryOnErrorPredicate(func(error) bool { return true }),
			},
			err:  errBadRequest,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MustNewPolicy("test", tt.options...)
			require.Equal(t, tt.want, p.ShouldRetryError(tt.err))
		})
	}
}

func TestNewCircuitAwarePolicy_IgnoresBreakerRejections(t *testing.T) {
	p := MustNewCircuitAwarePolicy("test")

	require.False(t, p.ShouldRetryError(circuitbreaker.ErrOpenState))
	require.False(t, p.ShouldRetryError(circuitbreaker.ErrForcedOpenState))
	require.True(t, p.ShouldRetryError(errConnRefused))
}

func TestPolicy_Clone(t *testing.T) {
	b := backoff.NewFixed(time.Millisecond)
	p := MustNewPolicy("template",
		WithMaxAttempts(5),
		WithAttemptTimeout(time.Second),
		WithBackoff(b),
		WithRetryErrors(errConnRefused),
		WithIgnoreErrors(errBadRequest),
	)

	clone := p.Clone("endpoint:1")

	require.Equal(t, "endpoint:1", clone.Name())
	require.Equal(t, p.MaxAttempts(), clone.MaxAttempts())
	require.Equal(t, p.AttemptTimeout(), clone.AttemptTimeout())
	require.Equal(t, p.Backoff(), clone.Backoff())
	require.Equal(t, p.RetryErrors(), clone.RetryErrors())
	require.Equal(t, p.IgnoreErrors(), clone.IgnoreErrors())

	// The clone holds its own error slices.
	clone.retryErrors[0] = errBadRequest
	require.ErrorIs(t, p.retryErrors[0], errConnRefused)
}
