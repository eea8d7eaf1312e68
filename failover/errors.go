package failover

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection tags transport-level failures (dial, write, read) so the
	// retry policy and circuit breaker can classify them. Server replies such
	// as command errors are deliberately not tagged: a reachable endpoint that
	// rejects a command is not a failover candidate.
	ErrConnection = errors.New("failover: connection error")

	// ErrExhausted is returned by AdvanceActiveIndex when no endpoint beyond
	// the current one remains. The active index is left unchanged; recovering
	// from this requires operator intervention.
	ErrExhausted = errors.New("failover: no failover target available")
)

// ConfigError reports an invalid construction-time argument, such as an empty
// endpoint list or an index outside [1, size]. It is never retried.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "failover: invalid " + e.Field + ": " + e.Message
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ValidationError reports a failed liveness probe against a fail-back
// candidate. The active index is never mutated when this is returned.
type ValidationError struct {
	Endpoint string
	Cause    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("failover: validation of %s failed: %v", e.Endpoint, e.Cause)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
