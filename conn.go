package datasrc

import (
	"context"
	"database/sql"
	"time"
)

// Connection is a caller-facing handle over one exclusively owned physical
// connection, with its own transaction flag, buffered result set, and sticky
// last error.
//
// A Connection's in-memory state is owned by the single goroutine holding it;
// sharing one Connection across goroutines is not synchronized and not
// supported.
type Connection struct {
	id       string
	provider Provider
	ds       *DataSource

	phys *sql.Conn
	tx   *sql.Tx

	opened bool
	inTx   bool

	rows     []Row
	cursor   int
	affected int64
	insertID int64

	lastErr     error
	throwErrors bool
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string { return c.id }

// InTransaction reports whether a transaction is active.
func (c *Connection) InTransaction() bool { return c.inTx }

// Opened reports whether the connection is still open.
func (c *Connection) Opened() bool { return c.opened }

// LastError returns the most recent failure recorded on this connection.
// It is replaced on each new failure, never cleared by success.
func (c *Connection) LastError() error { return c.lastErr }

// SetThrowErrors switches the error-reporting mode for this connection only.
// With throw enabled a failing operation panics with the typed error after
// recording it; otherwise the error is returned as an ordinary value. The
// mode is inherited from the DataSource at creation time.
func (c *Connection) SetThrowErrors(throw bool) { c.throwErrors = throw }

// fail records err as the last error and dispatches it according to the
// error-reporting mode. The mode is consulted here, at failure time, so a
// live cascade from the DataSource applies to calls already in flight.
func (c *Connection) fail(err error) error {
	c.lastErr = err
	if c.throwErrors {
		panic(err)
	}
	return err
}

func (c *Connection) execer() execQuerier {
	if c.tx != nil {
		return c.tx
	}
	return c.phys
}

// execQuerier is satisfied by *sql.Conn and *sql.Tx.
type execQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Query runs a statement returning rows and replaces the result buffer,
// resetting the cursor to the first row. On failure the previous buffer and
// counters are left untouched.
func (c *Connection) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	if !c.opened {
		return nil, c.fail(&StateError{Op: "query", Reason: reasonNotOpen})
	}
	start := time.Now()
	ctx, span := c.startSpan(ctx, "query", query)
	rows, err := c.provider.Query(ctx, c, query, args...)
	c.finishSpan(span, err)
	c.logOp(ctx, "query", query, len(args), time.Since(start), err)
	if err != nil {
		return nil, c.fail(err)
	}
	c.rows = rows
	c.cursor = 0
	return rows, nil
}

// QueryRow runs Query and returns the first row, or nil when the result is
// empty.
func (c *Connection) QueryRow(ctx context.Context, query string, args ...any) (*Row, error) {
	rows, err := c.Query(ctx, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// QueryScalar runs Query and returns the first field of the first row, or
// nil when the result is empty.
func (c *Connection) QueryScalar(ctx context.Context, query string, args ...any) (any, error) {
	row, err := c.QueryRow(ctx, query, args...)
	if err != nil || row == nil {
		return nil, err
	}
	return row.Index(0), nil
}

// Execute runs a statement that returns no rows. It empties the result
// buffer and records the affected-row count and last insert id.
func (c *Connection) Execute(ctx context.Context, query string, args ...any) (ExecResult, error) {
	if !c.opened {
		return ExecResult{}, c.fail(&StateError{Op: "execute", Reason: reasonNotOpen})
	}
	start := time.Now()
	ctx, span := c.startSpan(ctx, "execute", query)
	res, err := c.provider.Execute(ctx, c, query, args...)
	c.finishSpan(span, err)
	c.logOp(ctx, "execute", query, len(args), time.Since(start), err)
	if err != nil {
		return ExecResult{}, c.fail(err)
	}
	c.rows = nil
	c.cursor = 0
	c.affected = res.AffectedRows
	c.insertID = res.InsertID
	return res, nil
}

// BatchExecute splits a SQL blob into statements and executes them in order,
// returning one outcome per statement. A statement's failure never aborts
// the remainder; the caller must inspect the result slice. The result buffer
// is emptied like Execute.
func (c *Connection) BatchExecute(ctx context.Context, blob string) ([]BatchResult, error) {
	if !c.opened {
		return nil, c.fail(&StateError{Op: "batch execute", Reason: reasonNotOpen})
	}
	start := time.Now()
	ctx, span := c.startSpan(ctx, "batch", blob)
	results := c.provider.BatchExecute(ctx, c, blob)
	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			firstErr = r.Err
			break
		}
	}
	c.finishSpan(span, firstErr)
	c.logOp(ctx, "batch", blob, 0, time.Since(start), firstErr)
	c.rows = nil
	c.cursor = 0
	if firstErr != nil {
		// Recorded, not dispatched: per-statement failures are part of the
		// returned outcomes, not a failure of the batch call itself.
		c.lastErr = firstErr
	}
	return results, nil
}

// Begin starts a transaction. At most one transaction is active per
// connection.
func (c *Connection) Begin(ctx context.Context) error {
	if !c.opened {
		return c.fail(&StateError{Op: "begin", Reason: reasonNotOpen})
	}
	if c.inTx {
		return c.fail(&StateError{Op: "begin", Reason: reasonAlreadyInTx})
	}
	ctx, span := c.startSpan(ctx, "begin", "")
	err := c.provider.Begin(ctx, c)
	c.finishSpan(span, err)
	if err != nil {
		return c.fail(err)
	}
	c.inTx = true
	return nil
}

// Commit commits the active transaction.
func (c *Connection) Commit(ctx context.Context) error {
	if !c.opened {
		return c.fail(&StateError{Op: "commit", Reason: reasonNotOpen})
	}
	if !c.inTx {
		return c.fail(&StateError{Op: "commit", Reason: reasonNotInTx})
	}
	ctx, span := c.startSpan(ctx, "commit", "")
	err := c.provider.Commit(ctx, c)
	c.finishSpan(span, err)
	if err != nil {
		return c.fail(err)
	}
	c.inTx = false
	return nil
}

// Rollback rolls back the active transaction.
func (c *Connection) Rollback(ctx context.Context) error {
	if !c.opened {
		return c.fail(&StateError{Op: "rollback", Reason: reasonNotOpen})
	}
	if !c.inTx {
		return c.fail(&StateError{Op: "rollback", Reason: reasonNotInTx})
	}
	ctx, span := c.startSpan(ctx, "rollback", "")
	err := c.provider.Rollback(ctx, c)
	c.finishSpan(span, err)
	if err != nil {
		return c.fail(err)
	}
	c.inTx = false
	return nil
}

// Close releases the connection back to its provider. Closing an already
// closed connection is a no-op.
func (c *Connection) Close() error {
	if !c.opened {
		return nil
	}
	return c.provider.End(c)
}

// Disconnect is an alias of Close.
func (c *Connection) Disconnect() error { return c.Close() }

// End is an alias of Close.
func (c *Connection) End() error { return c.Close() }

// Release is an alias of Close.
func (c *Connection) Release() error { return c.Close() }

// Row peeks at the row under the cursor without advancing, or nil when the
// cursor is past the end.
func (c *Connection) Row() *Row {
	if c.cursor >= len(c.rows) {
		return nil
	}
	return &c.rows[c.cursor]
}

// Next returns the row under the cursor and advances it, or nil when no
// rows remain.
func (c *Connection) Next() *Row {
	row := c.Row()
	if row != nil {
		c.cursor++
	}
	return row
}

// HasRows reports whether any rows remain at or after the cursor.
func (c *Connection) HasRows() bool { return c.cursor < len(c.rows) }

// ResetCursor moves the cursor back to the first buffered row.
func (c *Connection) ResetCursor() { c.cursor = 0 }

// RowCount returns the number of buffered rows from the last query.
func (c *Connection) RowCount() int { return len(c.rows) }

// AffectedRows returns the affected-row count of the last Execute.
func (c *Connection) AffectedRows() int64 { return c.affected }

// InsertID returns the last insert id of the last Execute.
func (c *Connection) InsertID() int64 { return c.insertID }
