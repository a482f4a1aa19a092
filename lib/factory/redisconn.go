package factory

import (
	"context"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/go-i2p/dbpool/lib/errors"
	"github.com/go-i2p/dbpool/lib/pool"
)

// RedisConn gives typed access to a pooled redis connection. Like SQLConn,
// every call goes back through the handle, so once the handle is released
// each method fails with pool.ErrReleasedUse.
type RedisConn struct {
	h *pool.Handle
}

// NewRedisConn wraps a handle acquired from a pool built over a Redis factory.
func NewRedisConn(h *pool.Handle) *RedisConn {
	return &RedisConn{h: h}
}

// Handle returns the wrapped handle, for passing to Pool.Release.
func (c *RedisConn) Handle() *pool.Handle {
	return c.h
}

func (c *RedisConn) client() (*redis.Client, error) {
	r, err := c.h.Raw()
	if err != nil {
		return nil, err
	}
	rr, ok := r.(*RedisResource)
	if !ok {
		return nil, apperrors.WrapKind(apperrors.ErrUnsupported, "handle does not hold a redis connection", nil)
	}
	return rr.client, nil
}

// Do sends an arbitrary command, e.g. Do(ctx, "SET", "k", "v").
func (c *RedisConn) Do(ctx context.Context, args ...any) *redis.Cmd {
	client, err := c.client()
	if err != nil {
		cmd := redis.NewCmd(ctx, args...)
		cmd.SetErr(err)
		return cmd
	}
	return client.Do(ctx, args...)
}

// Ping checks the connection.
func (c *RedisConn) Ping(ctx context.Context) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}
