package factory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/go-i2p/dbpool/lib/errors"
	"github.com/go-i2p/dbpool/lib/pool"
)

// unconnectedRedis returns a pool whose redis resources point at a closed port.
// No command reaches a server; the tests only exercise the handle gating.
func unconnectedRedis(t *testing.T) *pool.Pool {
	t.Helper()
	f := pool.FactoryFunc(func(string, map[string]string) (pool.Resource, error) {
		return &RedisResource{client: redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 200 * time.Millisecond,
			MaxRetries:  -1,
		})}, nil
	})
	p, err := pool.New(f, "", nil, pool.Config{MinSize: 0, MaxSize: 1})
	if err != nil {
		t.Fatalf("pool.New failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestRedisConnForwardsWhileHeld(t *testing.T) {
	p := unconnectedRedis(t)
	h, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer p.Release(h)

	conn := NewRedisConn(h)
	if conn.Handle() != h {
		t.Error("Handle() should return the wrapped handle")
	}

	// The command reaches the client and fails on the dial, not on the handle.
	err = conn.Ping(context.Background())
	if err == nil {
		t.Fatal("expected a dial error from an unreachable server")
	}
	if errors.Is(err, pool.ErrReleasedUse) {
		t.Errorf("held handle reported released: %v", err)
	}
}

func TestRedisConnAfterRelease(t *testing.T) {
	p := unconnectedRedis(t)
	h, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	conn := NewRedisConn(h)

	if err := p.Release(conn.Handle()); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	ctx := context.Background()
	if err := conn.Ping(ctx); !errors.Is(err, pool.ErrReleasedUse) {
		t.Errorf("Ping after release: expected ErrReleasedUse, got %v", err)
	}

	cmd := conn.Do(ctx, "SET", "k", "v")
	if !errors.Is(cmd.Err(), pool.ErrReleasedUse) {
		t.Errorf("Do after release: expected ErrReleasedUse, got %v", cmd.Err())
	}
	if !apperrors.IsReleased(cmd.Err()) {
		t.Error("Do after release should be a released-handle error")
	}
}

func TestRedisConnWrongResource(t *testing.T) {
	f := pool.FactoryFunc(func(string, map[string]string) (pool.Resource, error) {
		return otherResource{}, nil
	})
	p, err := pool.New(f, "", nil, pool.Config{MinSize: 0, MaxSize: 1})
	if err != nil {
		t.Fatalf("pool.New failed: %v", err)
	}
	defer p.Close()

	h, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer p.Release(h)

	if err := NewRedisConn(h).Do(context.Background(), "PING").Err(); !errors.Is(err, apperrors.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
