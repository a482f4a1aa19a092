package factory

import (
	"context"
	"database/sql/driver"
	"errors"

	apperrors "github.com/go-i2p/dbpool/lib/errors"
	"github.com/go-i2p/dbpool/lib/pool"
)

// SQLConn gives typed access to a pooled SQL connection. Every call goes
// back through the handle, so once the handle is released each method fails
// with pool.ErrReleasedUse.
type SQLConn struct {
	h *pool.Handle
}

// NewSQLConn wraps a handle acquired from a pool built over an SQL factory.
func NewSQLConn(h *pool.Handle) *SQLConn {
	return &SQLConn{h: h}
}

// Handle returns the wrapped handle, for passing to Pool.Release.
func (c *SQLConn) Handle() *pool.Handle {
	return c.h
}

func (c *SQLConn) resource() (*SQLResource, error) {
	r, err := c.h.Raw()
	if err != nil {
		return nil, err
	}
	sr, ok := r.(*SQLResource)
	if !ok {
		return nil, apperrors.WrapKind(apperrors.ErrUnsupported, "handle does not hold an SQL connection", nil)
	}
	return sr, nil
}

// namedValues converts positional arguments to driver values.
func namedValues(args []any) ([]driver.NamedValue, error) {
	nv := make([]driver.NamedValue, len(args))
	for i, a := range args {
		v, err := driver.DefaultParameterConverter.ConvertValue(a)
		if err != nil {
			return nil, apperrors.WrapKind(apperrors.ErrInvalidInput, "unsupported argument type", err)
		}
		nv[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return nv, nil
}

func prepare(ctx context.Context, conn driver.Conn, query string) (driver.Stmt, error) {
	if pc, ok := conn.(driver.ConnPrepareContext); ok {
		return pc.PrepareContext(ctx, query)
	}
	return conn.Prepare(query)
}

func valuesOf(nv []driver.NamedValue) []driver.Value {
	v := make([]driver.Value, len(nv))
	for i := range nv {
		v[i] = nv[i].Value
	}
	return v
}

// ExecContext executes a statement that returns no rows.
func (c *SQLConn) ExecContext(ctx context.Context, query string, args ...any) (driver.Result, error) {
	r, err := c.resource()
	if err != nil {
		return nil, err
	}
	nv, err := namedValues(args)
	if err != nil {
		return nil, err
	}

	var res driver.Result
	err = r.withConn(func(conn driver.Conn) error {
		if ec, ok := conn.(driver.ExecerContext); ok {
			res, err = ec.ExecContext(ctx, query, nv)
			if !errors.Is(err, driver.ErrSkip) {
				return err
			}
		}

		stmt, err := prepare(ctx, conn, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		if sc, ok := stmt.(driver.StmtExecContext); ok {
			res, err = sc.ExecContext(ctx, nv)
			return err
		}
		res, err = stmt.Exec(valuesOf(nv))
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// stmtRows closes its statement together with the rows.
type stmtRows struct {
	driver.Rows
	stmt driver.Stmt
}

func (r *stmtRows) Close() error {
	return errors.Join(r.Rows.Close(), r.stmt.Close())
}

// QueryContext executes a query. The caller must close the rows before the
// handle is released.
func (c *SQLConn) QueryContext(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	r, err := c.resource()
	if err != nil {
		return nil, err
	}
	nv, err := namedValues(args)
	if err != nil {
		return nil, err
	}

	var rows driver.Rows
	err = r.withConn(func(conn driver.Conn) error {
		if qc, ok := conn.(driver.QueryerContext); ok {
			rows, err = qc.QueryContext(ctx, query, nv)
			if !errors.Is(err, driver.ErrSkip) {
				return err
			}
		}

		stmt, err := prepare(ctx, conn, query)
		if err != nil {
			return err
		}

		var sr driver.Rows
		if sc, ok := stmt.(driver.StmtQueryContext); ok {
			sr, err = sc.QueryContext(ctx, nv)
		} else {
			sr, err = stmt.Query(valuesOf(nv))
		}
		if err != nil {
			stmt.Close()
			return err
		}
		rows = &stmtRows{Rows: sr, stmt: stmt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// BeginTx starts a transaction.
func (c *SQLConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	r, err := c.resource()
	if err != nil {
		return nil, err
	}

	var tx driver.Tx
	err = r.withConn(func(conn driver.Conn) error {
		if bc, ok := conn.(driver.ConnBeginTx); ok {
			tx, err = bc.BeginTx(ctx, opts)
			return err
		}
		if opts != (driver.TxOptions{}) {
			return apperrors.WrapKind(apperrors.ErrUnsupported, "driver does not support transaction options", nil)
		}
		tx, err = conn.Begin()
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Ping checks the connection with the driver's Pinger. Drivers that cannot
// ping report ErrUnsupported.
func (c *SQLConn) Ping(ctx context.Context) error {
	r, err := c.resource()
	if err != nil {
		return err
	}
	return r.withConn(func(conn driver.Conn) error {
		p, ok := conn.(driver.Pinger)
		if !ok {
			return apperrors.WrapKind(apperrors.ErrUnsupported, "driver cannot ping", nil)
		}
		return p.Ping(ctx)
	})
}
