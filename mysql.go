package datasrc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// mysqlProvider implements Provider over database/sql with the
// go-sql-driver/mysql driver.
//
// Pooling maps onto the database/sql pool: with UsePool the configured pool
// sizes apply, without it the pool keeps no idle connections so every release
// physically closes its connection and each Start dials a fresh one.
type mysqlProvider struct {
	cfg             DataSourceConfig
	schema          string
	driver          string
	dsn             string
	poolTimeout     time.Duration
	multiStatements bool
	alwaysSplit     bool

	mu   sync.Mutex
	db   *sql.DB
	open map[string]*Connection
}

func newMySQLProvider(cfg DataSourceConfig, schema string) (Provider, error) {
	mc := *cfg.MySQL
	if err := mc.resolveEnv(nil); err != nil {
		return nil, err
	}
	if schema == "" {
		schema = mc.Database
	}
	if schema == "" && mc.DSN == "" {
		return nil, &ConfigurationError{
			Op:  "new provider",
			Err: fmt.Errorf("data source %q declares no schema and its driver configuration names no database", cfg.ID),
		}
	}
	return &mysqlProvider{
		cfg:             cfg,
		schema:          schema,
		driver:          mc.driverName(),
		dsn:             mc.dsn(schema, mc.MultiStatements),
		poolTimeout:     cfg.poolTimeout(),
		multiStatements: mc.MultiStatements,
		alwaysSplit:     cfg.alwaysSplit(),
		open:            make(map[string]*Connection),
	}, nil
}

func (p *mysqlProvider) Kind() string   { return KindMySQL }
func (p *mysqlProvider) Schema() string { return p.schema }

// ensureDB lazily opens the database handle; DisconnectAll drops it and the
// next Start recreates it here.
func (p *mysqlProvider) ensureDB() (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return p.db, nil
	}
	db, err := sql.Open(p.driver, p.dsn)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Err: err}
	}
	mc := p.cfg.MySQL
	if p.cfg.UsePool {
		if mc.MaxOpenConns > 0 {
			db.SetMaxOpenConns(mc.MaxOpenConns)
		}
		if mc.MaxIdleConns > 0 {
			db.SetMaxIdleConns(mc.MaxIdleConns)
		}
		if mc.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(time.Duration(mc.ConnMaxLifetime) * time.Millisecond)
		}
		if mc.ConnMaxIdleTime > 0 {
			db.SetConnMaxIdleTime(time.Duration(mc.ConnMaxIdleTime) * time.Millisecond)
		}
	} else {
		// No idle slots: every released connection closes for real.
		db.SetMaxIdleConns(0)
	}
	p.db = db
	return db, nil
}

func (p *mysqlProvider) Start(ctx context.Context) (*Connection, error) {
	db, err := p.ensureDB()
	if err != nil {
		return nil, err
	}
	acquireCtx, cancel := context.WithTimeout(ctx, p.poolTimeout)
	defer cancel()
	phys, err := db.Conn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Op: "start", Timeout: p.poolTimeout, Err: err}
		}
		return nil, &ConnectionError{Op: "start", Err: err}
	}
	conn := &Connection{
		id:       uuid.NewString(),
		provider: p,
		phys:     phys,
		opened:   true,
	}
	p.mu.Lock()
	p.open[conn.id] = conn
	p.mu.Unlock()
	return conn, nil
}

func (p *mysqlProvider) End(conn *Connection) error {
	p.mu.Lock()
	_, tracked := p.open[conn.id]
	delete(p.open, conn.id)
	p.mu.Unlock()
	if !tracked {
		return nil
	}
	conn.opened = false
	if conn.tx != nil {
		// Abandoned transaction: roll it back rather than leak a locked
		// connection back to the pool.
		_ = conn.tx.Rollback()
		conn.tx = nil
		conn.inTx = false
	}
	return conn.phys.Close()
}

func (p *mysqlProvider) DisconnectAll(ctx context.Context) error {
	p.mu.Lock()
	conns := make([]*Connection, 0, len(p.open))
	for _, c := range p.open {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	var firstErr error
	for _, c := range conns {
		if err := p.End(c); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p.mu.Lock()
	db := p.db
	p.db = nil
	p.mu.Unlock()
	if db != nil {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *mysqlProvider) Query(ctx context.Context, conn *Connection, query string, args ...any) ([]Row, error) {
	rows, err := conn.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{Op: "query", SQL: query, Err: err}
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, &QueryError{Op: "query", SQL: query, Err: err}
	}
	return out, nil
}

func (p *mysqlProvider) Execute(ctx context.Context, conn *Connection, query string, args ...any) (ExecResult, error) {
	res, err := conn.execer().ExecContext(ctx, query, args...)
	if err != nil {
		return ExecResult{}, &QueryError{Op: "execute", SQL: query, Err: err}
	}
	return execResult(res), nil
}

// BatchExecute runs a multi-statement blob. With the split policy in force
// (the default) the blob is tokenized and each statement executes on its own,
// one BatchResult per statement in order; a statement's failure never aborts
// the remainder. Only when splitting was explicitly disabled and the driver
// connection has multi-statement mode enabled does the whole blob go out as
// a single call, yielding a single aggregate entry.
func (p *mysqlProvider) BatchExecute(ctx context.Context, conn *Connection, blob string) []BatchResult {
	if p.multiStatements && !p.alwaysSplit {
		res, err := p.Execute(ctx, conn, blob)
		return []BatchResult{{Statement: blob, Result: res, Err: err}}
	}
	stmts := SplitStatements(blob)
	out := make([]BatchResult, 0, len(stmts))
	for _, stmt := range stmts {
		res, err := p.Execute(ctx, conn, stmt)
		out = append(out, BatchResult{Statement: stmt, Result: res, Err: err})
	}
	return out
}

func (p *mysqlProvider) Begin(ctx context.Context, conn *Connection) error {
	tx, err := conn.phys.BeginTx(ctx, nil)
	if err != nil {
		return &TransactionError{Op: "begin", Err: err}
	}
	conn.tx = tx
	return nil
}

func (p *mysqlProvider) Commit(ctx context.Context, conn *Connection) error {
	if conn.tx == nil {
		return &TransactionError{Op: "commit", Err: errors.New("no active transaction")}
	}
	if err := conn.tx.Commit(); err != nil {
		return &TransactionError{Op: "commit", Err: err}
	}
	conn.tx = nil
	return nil
}

func (p *mysqlProvider) Rollback(ctx context.Context, conn *Connection) error {
	if conn.tx == nil {
		return &TransactionError{Op: "rollback", Err: errors.New("no active transaction")}
	}
	if err := conn.tx.Rollback(); err != nil {
		return &TransactionError{Op: "rollback", Err: err}
	}
	conn.tx = nil
	return nil
}

func (p *mysqlProvider) OpenConnections() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Connection, 0, len(p.open))
	for _, c := range p.open {
		out = append(out, c)
	}
	return out
}

func (p *mysqlProvider) Ping(ctx context.Context) error {
	db, err := p.ensureDB()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return &ConnectionError{Op: "ping", Err: err}
	}
	return nil
}
