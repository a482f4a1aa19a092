package factory

import (
	apperrors "github.com/go-i2p/dbpool/lib/errors"
	"github.com/go-i2p/dbpool/lib/pool"
	"github.com/go-i2p/dbpool/lib/resilience"
)

// WithBreaker routes every open through b. While b is open, opens fail with
// resilience.ErrCircuitOpen without reaching f. Configuration errors, such as
// a malformed URL or option, do not count as backend failures.
func WithBreaker(f pool.Factory, b *resilience.Breaker) pool.Factory {
	return pool.FactoryFunc(func(target string, options map[string]string) (pool.Resource, error) {
		var r pool.Resource
		err := b.DoCounting(func() error {
			var err error
			r, err = f.Open(target, options)
			return err
		}, isBackendFailure)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
}

func isBackendFailure(err error) bool {
	return !apperrors.IsConfiguration(err)
}
