package failover

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Conn is a single checked-out connection. Callers must Close it to return
// it to its pool.
type Conn interface {
	// Ping performs a liveness probe over this connection.
	Ping(ctx context.Context) error

	Close() error
}

// Pool hands out connections for one endpoint.
type Pool interface {
	Get(ctx context.Context) (Conn, error)
	Close() error
}

// PoolFactory builds the pool for one endpoint at provider construction.
type PoolFactory func(cfg EndpointConfig) Pool

var (
	_ Pool = (*RedisPool)(nil)
	_ Conn = (*RedisConn)(nil)
)

// RedisPool adapts a go-redis client, which manages its own connection pool
// internally, to the Pool interface.
type RedisPool struct {
	client *redis.Client
}

func NewRedisPool(cfg EndpointConfig) Pool {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	return &RedisPool{client: client}
}

// Get checks out a dedicated connection. The checkout itself is lazy: the
// underlying socket is dialed on first use.
func (p *RedisPool) Get(_ context.Context) (Conn, error) {
	return &RedisConn{conn: p.client.Conn()}, nil
}

func (p *RedisPool) Close() error {
	return p.client.Close()
}

// Client exposes the underlying go-redis client for callers that issue
// commands outside a checked-out connection.
func (p *RedisPool) Client() *redis.Client {
	return p.client
}

// RedisConn is a dedicated go-redis connection checked out of a RedisPool.
type RedisConn struct {
	conn *redis.Conn
}

func (c *RedisConn) Ping(ctx context.Context) error {
	return connError(c.conn.Ping(ctx).Err())
}

func (c *RedisConn) Close() error {
	return c.conn.Close()
}

// Conn exposes the underlying go-redis connection for issuing commands.
func (c *RedisConn) Conn() *redis.Conn {
	return c.conn
}

// connError tags transport failures with ErrConnection. Errors the server
// itself replied with, including redis.Nil, pass through untagged: the
// endpoint was reachable.
func connError(err error) error {
	if err == nil {
		return nil
	}

	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return err
	}

	return fmt.Errorf("%w: %v", ErrConnection, err)
}
