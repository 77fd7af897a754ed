package datasrc

import (
	"context"
	"log/slog"
	"time"
)

// DataSource is a named, configured binding to one database plus schema.
// It is immutable after construction except for the error-reporting mode,
// which cascades live to every open connection.
type DataSource struct {
	id       string
	cfg      DataSourceConfig
	schema   string
	provider Provider

	throwErrors      bool
	showConsoleLogs  bool
	telemetryEnabled bool

	logger             *slog.Logger
	slowQueryThreshold time.Duration
	probe              ProbePolicy
}

func newDataSource(id string, cfg DataSourceConfig, schema string, provider Provider) *DataSource {
	return &DataSource{
		id:              id,
		cfg:             cfg,
		schema:          schema,
		provider:        provider,
		throwErrors:     cfg.ThrowErrors,
		showConsoleLogs: cfg.ShowConsoleLogs,
		probe:           DefaultProbePolicy(),
	}
}

// ID returns the data source's registry identifier (the normalized key).
func (ds *DataSource) ID() string { return ds.id }

// Schema returns the bound schema.
func (ds *DataSource) Schema() string { return ds.provider.Schema() }

// Provider returns the bound provider.
func (ds *DataSource) Provider() Provider { return ds.provider }

// Connect obtains a Connection from the provider. The connection inherits
// the data source's current error-reporting mode.
func (ds *DataSource) Connect(ctx context.Context) (*Connection, error) {
	conn, err := ds.provider.Start(ctx)
	if err != nil {
		return nil, err
	}
	conn.ds = ds
	conn.throwErrors = ds.throwErrors
	return conn, nil
}

// Begin connects and starts a transaction. When begin fails the connection
// is closed before the failure surfaces, so no half-initialized connection
// leaks to the caller.
func (ds *DataSource) Begin(ctx context.Context) (conn *Connection, err error) {
	conn, err = ds.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = conn.Close()
			panic(r)
		}
	}()
	if err = conn.Begin(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Query opens a fresh connection, runs one query, and closes the connection
// before returning. Not transaction-safe: use Begin for multi-statement
// atomicity.
func (ds *DataSource) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	conn, err := ds.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.Query(ctx, query, args...)
}

// QueryRow is the single-row variant of Query.
func (ds *DataSource) QueryRow(ctx context.Context, query string, args ...any) (*Row, error) {
	conn, err := ds.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.QueryRow(ctx, query, args...)
}

// QueryScalar is the single-value variant of Query.
func (ds *DataSource) QueryScalar(ctx context.Context, query string, args ...any) (any, error) {
	conn, err := ds.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.QueryScalar(ctx, query, args...)
}

// Execute opens a fresh connection, runs one statement, and closes the
// connection before returning. Not transaction-safe.
func (ds *DataSource) Execute(ctx context.Context, query string, args ...any) (ExecResult, error) {
	conn, err := ds.Connect(ctx)
	if err != nil {
		return ExecResult{}, err
	}
	defer conn.Close()
	return conn.Execute(ctx, query, args...)
}

// BatchExecute opens a fresh connection, runs a statement blob, and closes
// the connection before returning. Not transaction-safe.
func (ds *DataSource) BatchExecute(ctx context.Context, blob string) ([]BatchResult, error) {
	conn, err := ds.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.BatchExecute(ctx, blob)
}

// SetThrowErrors switches the error-reporting mode for this data source and
// cascades it immediately to every currently open connection. The cascade
// writes each connection's mode flag without synchronization; like all
// Connection state it assumes the connections are quiescent or held by the
// calling task, not mid-operation on another goroutine.
func (ds *DataSource) SetThrowErrors(throw bool) {
	ds.throwErrors = throw
	for _, conn := range ds.provider.OpenConnections() {
		conn.throwErrors = throw
	}
}

// EnableConsoleLogs enables or disables structured operation logging.
func (ds *DataSource) EnableConsoleLogs(enabled bool) { ds.showConsoleLogs = enabled }

// Disconnect tears down the provider's pooled state. The data source stays
// registered and usable; the next Connect recreates the pool.
func (ds *DataSource) Disconnect(ctx context.Context) error {
	return ds.provider.DisconnectAll(ctx)
}
