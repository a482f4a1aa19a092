package factory

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	apperrors "github.com/go-i2p/dbpool/lib/errors"
	"github.com/go-i2p/dbpool/lib/pool"
)

// SQL opens raw connections through a driver registered with database/sql.
type SQL struct {
	driverName string
	drv        driver.Driver
}

// NewSQL looks up the driver registered under driverName. The driver's
// package must be imported, usually for side effects, before calling NewSQL.
func NewSQL(driverName string) (*SQL, error) {
	if !slices.Contains(sql.Drivers(), driverName) {
		return nil, apperrors.WrapKind(apperrors.ErrUnknownDriver,
			fmt.Sprintf("no database/sql driver registered as %q", driverName), nil)
	}

	// sql.Open does not dial.
	db, err := sql.Open(driverName, "")
	if err != nil {
		return nil, apperrors.WrapKind(apperrors.ErrUnknownDriver,
			fmt.Sprintf("loading driver %q", driverName), err)
	}
	drv := db.Driver()
	db.Close()

	log.WithField("driver", driverName).Debug("loaded sql driver")
	return &SQL{driverName: driverName, drv: drv}, nil
}

// DriverName returns the name the driver is registered under.
func (s *SQL) DriverName() string {
	return s.driverName
}

// Open merges options into target and opens one driver connection.
func (s *SQL) Open(target string, options map[string]string) (pool.Resource, error) {
	dsn, err := MergeDSN(s.driverName, target, options)
	if err != nil {
		return nil, err
	}

	conn, err := s.drv.Open(dsn)
	if err != nil {
		log.WithField("driver", s.driverName).WithError(err).Debug("driver open failed")
		return nil, err
	}
	return &SQLResource{conn: conn}, nil
}

// SQLResource is a single driver connection owned by the pool.
// Calls into the connection are serialized.
type SQLResource struct {
	mu     sync.Mutex
	conn   driver.Conn
	closed bool
}

// NewSQLResource wraps an already open driver connection.
func NewSQLResource(conn driver.Conn) *SQLResource {
	return &SQLResource{conn: conn}
}

// IsValid asks the driver whether the connection is usable. A driver that
// implements driver.Validator is asked first; then, if the driver can ping,
// the connection is pinged with timeout as the deadline (zero means none).
// A driver.ErrBadConn from the ping reports invalid; other ping errors are
// returned.
func (r *SQLResource) IsValid(timeout time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, nil
	}
	if v, ok := r.conn.(driver.Validator); ok && !v.IsValid() {
		return false, nil
	}

	p, ok := r.conn.(driver.Pinger)
	if !ok {
		return true, nil
	}

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := p.Ping(ctx); err != nil {
		if errors.Is(err, driver.ErrBadConn) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Close closes the driver connection. Closing twice is a no-op.
func (r *SQLResource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.conn.Close()
}

// withConn runs fn with the connection under the resource lock.
func (r *SQLResource) withConn(fn func(driver.Conn) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return driver.ErrBadConn
	}
	return fn(r.conn)
}
