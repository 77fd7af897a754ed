package datasrc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMySQLProvider_PoolSlotReuse(t *testing.T) {
	ds, _ := newMockDataSource(t, "datasrc_mysql_reuse", func(c *DataSourceConfig) {
		c.MySQL.MaxOpenConns = 1
	})
	ctx := context.Background()

	first, err := ds.Connect(ctx)
	if err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The released slot must satisfy the next acquisition without growing
	// the pool past its single slot.
	second, err := ds.Connect(ctx)
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	defer second.Close()

	if first.ID() == second.ID() {
		t.Fatalf("connections must carry distinct identifiers")
	}
}

func TestMySQLProvider_AcquireTimeout(t *testing.T) {
	ds, _ := newMockDataSource(t, "datasrc_mysql_timeout", func(c *DataSourceConfig) {
		c.MySQL.MaxOpenConns = 1
		c.PoolTimeout = 50 // ms
	})
	ctx := context.Background()

	held, err := ds.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer held.Close()

	_, err = ds.Connect(ctx)
	var toErr *TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestMySQLProvider_EndIsIdempotent(t *testing.T) {
	ds, _ := newMockDataSource(t, "datasrc_mysql_end")
	ctx := context.Background()

	conn, err := ds.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	p := ds.Provider()
	if n := len(p.OpenConnections()); n != 1 {
		t.Fatalf("open set = %d, want 1", n)
	}
	if err := p.End(conn); err != nil {
		t.Fatalf("End: %v", err)
	}
	if n := len(p.OpenConnections()); n != 0 {
		t.Fatalf("open set = %d, want 0", n)
	}
	if conn.Opened() {
		t.Fatalf("ended connection must be marked disposed")
	}
	// Ending an already-removed connection is a no-op.
	if err := p.End(conn); err != nil {
		t.Fatalf("second End: %v", err)
	}
}

func TestMySQLProvider_DisconnectAllRecreatesPool(t *testing.T) {
	ds, mock := newMockDataSource(t, "datasrc_mysql_reconnect")
	ctx := context.Background()

	open1, err := ds.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	open2, err := ds.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Both released connections sit idle in the pool; closing the pool
	// closes each of them at the driver level.
	mock.ExpectClose()
	mock.ExpectClose()
	if err := ds.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if open1.Opened() || open2.Opened() {
		t.Fatalf("Disconnect must close every open connection")
	}
	if n := len(ds.Provider().OpenConnections()); n != 0 {
		t.Fatalf("open set = %d after disconnect", n)
	}

	// The data source stays registered and usable: the pool comes back on
	// the next acquisition.
	again, err := ds.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect after Disconnect: %v", err)
	}
	defer again.Close()
}

func TestMySQLProvider_BatchExecuteSplitOutcomes(t *testing.T) {
	ds, mock := newMockDataSource(t, "datasrc_mysql_batch")
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO t VALUES (1)").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO missing VALUES (2)").WillReturnError(fmt.Errorf("table missing"))
	mock.ExpectExec("INSERT INTO t VALUES (3)").WillReturnResult(sqlmock.NewResult(3, 1))

	conn, err := ds.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	results, err := conn.BatchExecute(ctx,
		"INSERT INTO t VALUES (1); -- seed\nINSERT INTO missing VALUES (2); INSERT INTO t VALUES (3);")
	if err != nil {
		t.Fatalf("BatchExecute: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected one outcome per statement, got %d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("surrounding statements must run despite the middle failure: %+v", results)
	}
	var qErr *QueryError
	if !errors.As(results[1].Err, &qErr) {
		t.Fatalf("middle outcome = %+v", results[1])
	}
	if results[0].Result.AffectedRows != 1 || results[2].Result.InsertID != 3 {
		t.Fatalf("unexpected results: %+v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMySQLProvider_BatchExecuteSingleShotWhenOptedOut(t *testing.T) {
	noSplit := false
	ds, mock := newMockDataSource(t, "datasrc_mysql_batch_single", func(c *DataSourceConfig) {
		c.BatchExecuteAlwaysSplit = &noSplit
		c.MySQL.MultiStatements = true
	})
	ctx := context.Background()

	blob := "INSERT INTO t VALUES (1); INSERT INTO t VALUES (2);"
	mock.ExpectExec(blob).WillReturnResult(sqlmock.NewResult(2, 2))

	conn, err := ds.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	results, err := conn.BatchExecute(ctx, blob)
	if err != nil {
		t.Fatalf("BatchExecute: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("opt-out mode must yield a single aggregate outcome, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Result.AffectedRows != 2 {
		t.Fatalf("outcome = %+v", results[0])
	}
}

func TestMySQLProvider_QueryInsideTransactionUsesTx(t *testing.T) {
	ds, mock := newMockDataSource(t, "datasrc_mysql_txexec")
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t SET a = 1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	conn, err := ds.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Execute(ctx, "UPDATE t SET a = 1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := conn.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMySQLProvider_CloseRollsBackAbandonedTransaction(t *testing.T) {
	ds, mock := newMockDataSource(t, "datasrc_mysql_abandon")
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	conn, err := ds.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("abandoned transaction was not rolled back: %v", err)
	}
}

func TestMySQLProvider_Ping(t *testing.T) {
	// Pings are invisible to sqlmock unless monitored, so this test builds
	// its own mock instead of using the shared helper.
	db, mock, err := sqlmock.NewWithDSN("datasrc_mysql_ping",
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(true),
	)
	if err != nil {
		t.Fatalf("sqlmock.NewWithDSN: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := DataSourceConfig{
		ID:    "ping",
		MySQL: &MySQLConfig{Driver: "sqlmock", DSN: "datasrc_mysql_ping"},
	}
	provider, err := newMySQLProvider(cfg, "")
	if err != nil {
		t.Fatalf("newMySQLProvider: %v", err)
	}
	ds := newDataSource(cfg.ID, cfg, "", provider)

	mock.ExpectPing()
	if err := ds.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMySQLProvider_DirectCommitRollbackWithoutTransaction(t *testing.T) {
	ds, _ := newMockDataSource(t, "datasrc_mysql_notx")
	ctx := context.Background()

	conn, err := ds.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	// The provider is reachable directly; without an active transaction it
	// must fail cleanly rather than dereference a nil tx.
	var txErr *TransactionError
	if err := ds.Provider().Commit(ctx, conn); !errors.As(err, &txErr) {
		t.Fatalf("direct commit without begin: %v", err)
	}
	if err := ds.Provider().Rollback(ctx, conn); !errors.As(err, &txErr) {
		t.Fatalf("direct rollback without begin: %v", err)
	}
}
