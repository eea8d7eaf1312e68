package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/redisfailover/circuitbreaker"
)

type fakePool struct {
	name     string
	getErr   error
	pingErr  error
	closeErr error

	gets   int
	pings  int
	closed bool
}

func (p *fakePool) Get(context.Context) (Conn, error) {
	p.gets++
	if p.getErr != nil {
		return nil, p.getErr
	}
	return &fakeConn{pool: p}, nil
}

func (p *fakePool) Close() error {
	p.closed = true
	return p.closeErr
}

type fakeConn struct {
	pool *fakePool
}

func (c *fakeConn) Ping(context.Context) error {
	c.pool.pings++
	return c.pool.pingErr
}

func (c *fakeConn) Close() error {
	return nil
}

func newTestProvider(t *testing.T, size int, opts ...Option) (*Provider, []*fakePool) {
	t.Helper()

	pools := make([]*fakePool, 0, size)
	endpoints := make([]EndpointConfig, 0, size)
	for i := 0; i < size; i++ {
		endpoints = append(endpoints, EndpointConfig{Address: fmt.Sprintf("redis-%d:6379", i+1)})
	}

	factory := func(cfg EndpointConfig) Pool {
		pool := &fakePool{name: cfg.Address}
		pools = append(pools, pool)
		return pool
	}

	opts = append([]Option{
		WithPoolFactory(factory),
		WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)

	p, err := New(endpoints, opts...)
	require.NoError(t, err)

	return p, pools
}

func TestNew_RequiresAtLeastOneEndpoint(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.True(t, IsConfigError(err))
}

func TestNew_AssignsPrioritiesInOrder(t *testing.T) {
	p, _ := newTestProvider(t, 3)

	require.Equal(t, 3, p.Size())
	require.Equal(t, 1, p.ActiveIndex())

	for i := 1; i <= 3; i++ {
		cluster, err := p.ClusterAt(i)
		require.NoError(t, err)
		require.Equal(t, i, cluster.Priority())
		require.Equal(t, fmt.Sprintf("endpoint:%d:redis-%d:6379", i, i), cluster.Name())
		require.Equal(t, circuitbreaker.StateClosed, cluster.Breaker().State())
	}
}

func TestNew_ChainsBreakerOptionListeners(t *testing.T) {
	var fromBreakerOptions, fromProvider []circuitbreaker.State

	p, _ := newTestProvider(t, 1,
		WithBreakerOptions(
			circuitbreaker.WithMinimumNumberOfCalls(1),
			circuitbreaker.WithTransitionListener(func(tr circuitbreaker.StateTransition) {
				fromBreakerOptions = append(fromBreakerOptions, tr.ToState)
			}),
		),
		WithTransitionListener(func(tr circuitbreaker.StateTransition) {
			fromProvider = append(fromProvider, tr.ToState)
		}),
	)

	p.clusters[0].breaker.TransitionToForcedOpen()
	p.clusters[0].breaker.TransitionToClosed()

	want := []circuitbreaker.State{circuitbreaker.StateForcedOpen, circuitbreaker.StateClosed}
	require.Equal(t, want, fromBreakerOptions)
	require.Equal(t, want, fromProvider)
}

func TestClusterAt_RejectsOutOfRangeIndex(t *testing.T) {
	p, _ := newTestProvider(t, 2)

	for _, index := range []int{0, -1, 3} {
		_, err := p.ClusterAt(index)
		require.Error(t, err)
		require.True(t, IsConfigError(err))
	}
}

func TestGetConnection_UsesActivePool(t *testing.T) {
	p, pools := newTestProvider(t, 2)

	conn, err := p.GetConnection(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.Equal(t, 1, pools[0].gets)
	require.Zero(t, pools[1].gets)

	conn, err = p.GetConnectionAt(context.Background(), 2)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.Equal(t, 1, pools[1].gets)
}

func TestAdvanceActiveIndex_SizeOneAlwaysExhausts(t *testing.T) {
	p, _ := newTestProvider(t, 1)

	for i := 0; i < 3; i++ {
		_, err := p.AdvanceActiveIndex()
		require.ErrorIs(t, err, ErrExhausted)
		require.Equal(t, 1, p.ActiveIndex())
	}
}

func TestAdvanceActiveIndex_MovesForward(t *testing.T) {
	p, _ := newTestProvider(t, 3)

	index, err := p.AdvanceActiveIndex()
	require.NoError(t, err)
	require.Equal(t, 2, index)

	index, err = p.AdvanceActiveIndex()
	require.NoError(t, err)
	require.Equal(t, 3, index)

	_, err = p.AdvanceActiveIndex()
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 3, p.ActiveIndex())
}

func TestAdvanceActiveIndex_SkipsForcedOpenEndpoints(t *testing.T) {
	p, _ := newTestProvider(t, 4)

	p.clusters[1].breaker.TransitionToForcedOpen()
	p.clusters[2].breaker.TransitionToForcedOpen()

	index, err := p.AdvanceActiveIndex()
	require.NoError(t, err)
	require.Equal(t, 4, index)
	require.Equal(t, 4, p.ActiveIndex())
}

func TestAdvanceActiveIndex_AllRemainingForcedOpenExhausts(t *testing.T) {
	p, _ := newTestProvider(t, 3)

	p.clusters[1].breaker.TransitionToForcedOpen()
	p.clusters[2].breaker.TransitionToForcedOpen()

	_, err := p.AdvanceActiveIndex()
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 1, p.ActiveIndex())
}

func TestValidateTarget_SuccessLeavesBreakerClosed(t *testing.T) {
	p, pools := newTestProvider(t, 2)

	p.clusters[1].breaker.TransitionToForcedOpen()

	require.NoError(t, p.ValidateTarget(context.Background(), 2))
	require.Equal(t, circuitbreaker.StateClosed, p.clusters[1].breaker.State())
	require.Equal(t, 1, pools[1].pings)
}

func TestValidateTarget_FailureRestoresForcedOpen(t *testing.T) {
	p, pools := newTestProvider(t, 2)

	pools[1].pingErr = errors.New("connection refused")
	p.clusters[1].breaker.TransitionToForcedOpen()

	err := p.ValidateTarget(context.Background(), 2)
	require.Error(t, err)
	require.True(t, IsValidationError(err))
	require.Equal(t, circuitbreaker.StateForcedOpen, p.clusters[1].breaker.State())
}

func TestValidateTarget_FailureDoesNotForceOpenClosedBreaker(t *testing.T) {
	p, pools := newTestProvider(t, 2)

	pools[1].pingErr = errors.New("connection refused")

	err := p.ValidateTarget(context.Background(), 2)
	require.Error(t, err)
	require.Equal(t, circuitbreaker.StateClosed, p.clusters[1].breaker.State())
}

func TestSetActiveIndex_CurrentIndexIsNoOp(t *testing.T) {
	p, pools := newTestProvider(t, 2)

	require.NoError(t, p.SetActiveIndex(context.Background(), 1))
	require.Equal(t, 1, p.ActiveIndex())

	// No probe performed.
	require.Zero(t, pools[0].pings)
	require.Zero(t, pools[1].pings)
}

func TestSetActiveIndex_OutOfRange(t *testing.T) {
	p, _ := newTestProvider(t, 2)

	err := p.SetActiveIndex(context.Background(), 3)
	require.Error(t, err)
	require.True(t, IsConfigError(err))
	require.Equal(t, 1, p.ActiveIndex())
}

func TestSetActiveIndex_FailedProbeLeavesIndexUnchanged(t *testing.T) {
	p, pools := newTestProvider(t, 3)

	_, err := p.AdvanceActiveIndex()
	require.NoError(t, err)
	require.Equal(t, 2, p.ActiveIndex())

	pools[0].pingErr = errors.New("connection refused")
	p.clusters[0].breaker.TransitionToForcedOpen()

	err = p.SetActiveIndex(context.Background(), 1)
	require.True(t, IsValidationError(err))
	require.Equal(t, 2, p.ActiveIndex())
	require.Equal(t, circuitbreaker.StateForcedOpen, p.clusters[0].breaker.State())
}

func TestSetActiveIndex_FailBack(t *testing.T) {
	p, pools := newTestProvider(t, 2)

	_, err := p.AdvanceActiveIndex()
	require.NoError(t, err)
	require.Equal(t, 2, p.ActiveIndex())

	require.NoError(t, p.SetActiveIndex(context.Background(), 1))
	require.Equal(t, 1, p.ActiveIndex())
	require.Equal(t, circuitbreaker.StateClosed, p.clusters[0].breaker.State())
	require.Equal(t, 1, pools[0].pings)
}

func TestClose_ClosesEveryPool(t *testing.T) {
	p, pools := newTestProvider(t, 3)

	pools[1].closeErr = errors.New("already closed")

	err := p.Close()
	require.ErrorContains(t, err, "already closed")

	for _, pool := range pools {
		require.True(t, pool.closed)
	}
}
