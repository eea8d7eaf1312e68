package failover

import (
	"fmt"
	"sync"
	"time"

	"github.com/kestrelworks/redisfailover/circuitbreaker"
	"github.com/kestrelworks/redisfailover/retry"
)

// EndpointConfig describes one backend deployment the provider can route to.
// Priority is not part of the config: it is assigned as the 1-based position
// in the list handed to New.
type EndpointConfig struct {
	Address  string
	Username string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// Cluster bundles everything owned per endpoint: its connection pool, its
// retry policy, and its circuit breaker. Clusters are built once at provider
// construction and live for the provider's lifetime.
type Cluster struct {
	priority int
	config   EndpointConfig
	pool     Pool
	policy   *retry.Policy
	breaker  circuitbreaker.CircuitBreaker

	// mu serializes fail-back validation of this endpoint. It is independent
	// of the provider's routing lock so that probing one endpoint never
	// blocks traffic on another.
	mu sync.Mutex
}

func clusterName(priority int, address string) string {
	return fmt.Sprintf("endpoint:%d:%s", priority, address)
}

func (c *Cluster) Name() string {
	return clusterName(c.priority, c.config.Address)
}

// Priority is the 1-based rank of this endpoint in the registry.
func (c *Cluster) Priority() int {
	return c.priority
}

func (c *Cluster) Config() EndpointConfig {
	return c.config
}

func (c *Cluster) Pool() Pool {
	return c.pool
}

func (c *Cluster) Policy() *retry.Policy {
	return c.policy
}

func (c *Cluster) Breaker() circuitbreaker.CircuitBreaker {
	return c.breaker
}
