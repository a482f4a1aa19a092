// Package factory provides connection factories for the pool.
//
// SQL opens raw driver connections through any driver registered with
// database/sql, so the pool manages driver.Conn values directly rather than
// an *sql.DB with its own pooling. Redis opens single-connection go-redis
// clients. WithBreaker guards any factory with a circuit breaker so a
// backend that refuses connections fails fast.
//
// Basic usage:
//
//	f, err := factory.NewSQL("sqlite3")
//	if err != nil {
//		return err
//	}
//	p, err := pool.New(f, "file:app.db", map[string]string{"_busy_timeout": "5000"}, pool.Config{MinSize: 2, MaxSize: 8})
//	if err != nil {
//		return err
//	}
//	h, err := p.Acquire()
//	if err != nil {
//		return err
//	}
//	defer p.Release(h)
//
//	conn := factory.NewSQLConn(h)
//	_, err = conn.ExecContext(ctx, "INSERT INTO t(v) VALUES (?)", 1)
package factory
