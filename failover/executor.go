package failover

import (
	"context"

	"github.com/kestrelworks/redisfailover/circuitbreaker"
	"github.com/kestrelworks/redisfailover/retry"
)

// Executor runs units of work against the provider's active endpoint through
// that endpoint's retry policy and circuit breaker. When the active breaker
// rejects a call, the executor advances the active index and re-runs the work
// against the next endpoint; ErrExhausted propagates when no endpoint is left.
type Executor struct {
	provider *Provider
}

func NewExecutor(provider *Provider) *Executor {
	return &Executor{provider: provider}
}

func (e *Executor) Provider() *Provider {
	return e.provider
}

// Execute runs fn with a connection checked out of the active endpoint's
// pool. The whole retry sequence counts as a single breaker outcome, so an
// exhausted sequence records exactly one failure. The loop terminates because
// every rejection strictly advances the active index.
func Execute[T any](ctx context.Context, e *Executor, fn func(ctx context.Context, conn Conn) (T, error)) (T, error) {
	for {
		cluster := e.provider.Cluster()

		result, err := retry.ExecuteWithCircuit(ctx, cluster.policy, cluster.breaker,
			func(ctx context.Context) (T, error) {
				conn, err := cluster.pool.Get(ctx)
				if err != nil {
					var zero T
					return zero, err
				}
				defer conn.Close()

				return fn(ctx, conn)
			})

		if err != nil && circuitbreaker.IsCallNotPermittedError(err) {
			if _, advanceErr := e.provider.AdvanceActiveIndex(); advanceErr != nil {
				var zero T
				return zero, advanceErr
			}
			continue
		}

		return result, err
	}
}

// Do is Execute for work without a result.
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context, conn Conn) error) error {
	_, err := Execute(ctx, e, func(ctx context.Context, conn Conn) (struct{}, error) {
		return struct{}{}, fn(ctx, conn)
	})

	return err
}
