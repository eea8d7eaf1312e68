package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kestrelworks/redisfailover/circuitbreaker"
	"github.com/kestrelworks/redisfailover/retry"
)

type config struct {
	logger             *slog.Logger
	poolFactory        PoolFactory
	retryTemplate      *retry.Policy
	windowFactory      func() circuitbreaker.Window
	breakerOptions     []circuitbreaker.Option
	transitionListener circuitbreaker.TransitionListener
}

type Option func(*config)

func defaultConfig() config {
	return config{
		logger:      slog.Default(),
		poolFactory: NewRedisPool,
		retryTemplate: retry.MustNewCircuitAwarePolicy("failover",
			retry.WithRetryErrors(ErrConnection),
		),
		windowFactory: func() circuitbreaker.Window {
			return circuitbreaker.NewCountWindow(100)
		},
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithPoolFactory replaces the go-redis pool with a custom Pool per endpoint.
func WithPoolFactory(factory PoolFactory) Option {
	return func(c *config) {
		c.poolFactory = factory
	}
}

// WithRetryPolicy sets the policy template; each endpoint gets a clone named
// after it. Circuit breaker rejections should stay in its ignore list so a
// tripped breaker fails fast instead of being retried.
func WithRetryPolicy(policy *retry.Policy) Option {
	return func(c *config) {
		c.retryTemplate = policy
	}
}

// WithWindowFactory sets how each endpoint's sliding window is built. A
// factory rather than a window: windows are mutable and must never be shared
// between breakers.
func WithWindowFactory(factory func() circuitbreaker.Window) Option {
	return func(c *config) {
		c.windowFactory = factory
	}
}

// WithBreakerOptions appends options applied to every endpoint's breaker,
// such as thresholds and minimum call counts.
func WithBreakerOptions(opts ...circuitbreaker.Option) Option {
	return func(c *config) {
		c.breakerOptions = append(c.breakerOptions, opts...)
	}
}

// WithTransitionListener observes every endpoint's breaker transitions, in
// addition to the provider's own transition logging.
func WithTransitionListener(listener circuitbreaker.TransitionListener) Option {
	return func(c *config) {
		c.transitionListener = listener
	}
}

// Provider routes calls to one of several equivalent endpoints. Exactly one
// endpoint is active at a time; AdvanceActiveIndex moves forward past failing
// or disabled endpoints and SetActiveIndex is the manual fail-back path. The
// provider never re-promotes a recovered endpoint on its own.
type Provider struct {
	clusters []*Cluster
	logger   *slog.Logger

	// mu guards activeIndex. It is never held while probing an endpoint.
	mu          sync.Mutex
	activeIndex int
}

// New builds a provider over the given endpoints. Priority is the 1-based
// position in the list; the first endpoint starts active.
func New(endpoints []EndpointConfig, opts ...Option) (*Provider, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(endpoints) == 0 {
		return nil, &ConfigError{Field: "endpoints", Message: "at least one endpoint is required"}
	}

	p := &Provider{
		clusters:    make([]*Cluster, 0, len(endpoints)),
		logger:      cfg.logger,
		activeIndex: 1,
	}

	// A listener configured through WithBreakerOptions is chained, not
	// overwritten, alongside WithTransitionListener and the provider's own
	// transition logging.
	var scratch circuitbreaker.Config
	for _, opt := range cfg.breakerOptions {
		opt(&scratch)
	}

	for i, endpoint := range endpoints {
		priority := i + 1
		name := clusterName(priority, endpoint.Address)

		breakerOpts := []circuitbreaker.Option{
			circuitbreaker.WithWindow(cfg.windowFactory()),
			circuitbreaker.WithRecordErrors(ErrConnection),
		}
		breakerOpts = append(breakerOpts, cfg.breakerOptions...)
		breakerOpts = append(breakerOpts,
			circuitbreaker.WithTransitionListener(
				p.transitionListener(cfg.transitionListener, scratch.TransitionListener)))

		p.clusters = append(p.clusters, &Cluster{
			priority: priority,
			config:   endpoint,
			pool:     cfg.poolFactory(endpoint),
			policy:   cfg.retryTemplate.Clone(name),
			breaker:  circuitbreaker.New(name, breakerOpts...),
		})
	}

	return p, nil
}

func (p *Provider) transitionListener(next ...circuitbreaker.TransitionListener) circuitbreaker.TransitionListener {
	return func(t circuitbreaker.StateTransition) {
		p.logger.Warn("circuit breaker state changed",
			"endpoint", t.Name,
			"from", t.FromState.String(),
			"to", t.ToState.String(),
		)

		for _, listener := range next {
			if listener != nil {
				listener(t)
			}
		}
	}
}

// Size is the number of registered endpoints.
func (p *Provider) Size() int {
	return len(p.clusters)
}

// ActiveIndex is the 1-based index of the currently active endpoint.
func (p *Provider) ActiveIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeIndex
}

// Cluster returns the currently active endpoint's bundle.
func (p *Provider) Cluster() *Cluster {
	return p.clusters[p.ActiveIndex()-1]
}

// ClusterAt returns the bundle for an explicit 1-based index.
func (p *Provider) ClusterAt(index int) (*Cluster, error) {
	if index < 1 || index > len(p.clusters) {
		return nil, &ConfigError{
			Field:   "index",
			Message: fmt.Sprintf("%d is outside [1, %d]", index, len(p.clusters)),
		}
	}

	return p.clusters[index-1], nil
}

// GetConnection checks a connection out of the active endpoint's pool. No
// retry or breaker logic applies to the checkout itself; those wrap the call
// made over the connection.
func (p *Provider) GetConnection(ctx context.Context) (Conn, error) {
	return p.Cluster().pool.Get(ctx)
}

// GetConnectionAt checks a connection out of an explicit endpoint's pool,
// regardless of which endpoint is active.
func (p *Provider) GetConnectionAt(ctx context.Context, index int) (Conn, error) {
	cluster, err := p.ClusterAt(index)
	if err != nil {
		return nil, err
	}

	return cluster.pool.Get(ctx)
}

// BreakerState is the active endpoint's breaker state.
func (p *Provider) BreakerState() circuitbreaker.State {
	return p.Cluster().breaker.State()
}

func (p *Provider) BreakerStateAt(index int) (circuitbreaker.State, error) {
	cluster, err := p.ClusterAt(index)
	if err != nil {
		return 0, err
	}

	return cluster.breaker.State(), nil
}

// AdvanceActiveIndex moves the active index forward to the next endpoint
// whose breaker is not FORCED_OPEN, skipping administratively disabled ones.
// When no eligible endpoint remains it returns ErrExhausted and leaves the
// index unchanged. Advancing only ever moves forward; fail-back goes through
// SetActiveIndex.
func (p *Provider) AdvanceActiveIndex() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.activeIndex + 1
	for next <= len(p.clusters) && p.clusters[next-1].breaker.State() == circuitbreaker.StateForcedOpen {
		next++
	}

	if next > len(p.clusters) {
		return p.activeIndex, ErrExhausted
	}

	previous := p.clusters[p.activeIndex-1]
	p.activeIndex = next

	p.logger.Warn("failed over to next endpoint",
		"from", previous.Name(),
		"to", p.clusters[next-1].Name(),
	)

	return next, nil
}

// ValidateTarget probes an endpoint before fail-back. Under the endpoint's
// own lock it forces the breaker CLOSED, checks out a connection and pings
// it. On probe failure the breaker is restored to FORCED_OPEN if and only if
// it was forced open beforehand, so a failed validation leaves the endpoint
// exactly as disabled as it was. Success leaves the breaker CLOSED.
func (p *Provider) ValidateTarget(ctx context.Context, index int) error {
	cluster, err := p.ClusterAt(index)
	if err != nil {
		return err
	}

	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	prior := cluster.breaker.State()
	cluster.breaker.TransitionToClosed()

	if err := p.probe(ctx, cluster); err != nil {
		if prior == circuitbreaker.StateForcedOpen {
			cluster.breaker.TransitionToForcedOpen()
		}

		p.logger.Error("endpoint validation failed",
			"endpoint", cluster.Name(),
			"error", err,
		)

		return &ValidationError{Endpoint: cluster.Name(), Cause: err}
	}

	return nil
}

func (p *Provider) probe(ctx context.Context, cluster *Cluster) error {
	conn, err := cluster.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Ping(ctx)
}

// SetActiveIndex moves the active index to an explicit endpoint after a
// successful validation probe. This is the only path that can move the index
// backward. Setting the already-active index is a no-op with no probe.
func (p *Provider) SetActiveIndex(ctx context.Context, index int) error {
	if _, err := p.ClusterAt(index); err != nil {
		return err
	}

	p.mu.Lock()
	current := p.activeIndex
	p.mu.Unlock()

	if index == current {
		return nil
	}

	if err := p.ValidateTarget(ctx, index); err != nil {
		return err
	}

	p.mu.Lock()
	previous := p.clusters[p.activeIndex-1]
	p.activeIndex = index
	p.mu.Unlock()

	p.logger.Warn("active endpoint changed",
		"from", previous.Name(),
		"to", p.clusters[index-1].Name(),
	)

	return nil
}

// Close closes every endpoint's pool, not only the active one: each endpoint
// owns live sockets for the provider's whole lifetime.
func (p *Provider) Close() error {
	var errs []error
	for _, cluster := range p.clusters {
		if err := cluster.pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
