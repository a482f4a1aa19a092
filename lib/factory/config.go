package factory

import (
	"fmt"

	"github.com/go-i2p/dbpool/lib/config"
	apperrors "github.com/go-i2p/dbpool/lib/errors"
	"github.com/go-i2p/dbpool/lib/pool"
	"github.com/go-i2p/dbpool/lib/resilience"
)

// ForConfig returns the factory for the configured database kind.
func ForConfig(cfg config.DatabaseConfig) (pool.Factory, error) {
	switch cfg.Kind {
	case config.KindSQL, "":
		return NewSQL(cfg.Driver)
	case config.KindRedis:
		return NewRedis(), nil
	default:
		return nil, apperrors.WrapKind(apperrors.ErrConfiguration,
			fmt.Sprintf("unknown database kind %q", cfg.Kind), nil)
	}
}

// NewPool builds the configured factory, guards it with a circuit breaker
// when enabled, and creates the pool. The breaker is nil when disabled.
func NewPool(cfg *config.Config) (*pool.Pool, *resilience.Breaker, error) {
	f, err := ForConfig(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	var b *resilience.Breaker
	if cfg.Breaker.Enabled {
		bc, err := cfg.Breaker.Settings()
		if err != nil {
			return nil, nil, err
		}
		name := cfg.Database.Kind
		if cfg.Database.Driver != "" {
			name += ":" + cfg.Database.Driver
		}
		b = resilience.New(name, bc)
		f = WithBreaker(f, b)
	}

	p, err := pool.New(f, cfg.Database.URL, cfg.Database.Options, cfg.Pool.Bounds())
	if err != nil {
		return nil, nil, err
	}

	log.WithField("kind", cfg.Database.Kind).
		WithField("driver", cfg.Database.Driver).
		WithField("breaker", cfg.Breaker.Enabled).
		Info("pool ready")
	return p, b, nil
}
