package datasrc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestDataSource_OneShotQueryClosesConnection(t *testing.T) {
	ds, mock := newMockDataSource(t, "datasrc_ds_query")
	ctx := context.Background()

	mock.ExpectQuery("SELECT id FROM t").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))

	rows, err := ds.Query(ctx, "SELECT id FROM t")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if n := len(ds.Provider().OpenConnections()); n != 0 {
		t.Fatalf("one-shot query leaked %d connections", n)
	}
}

func TestDataSource_OneShotClosesConnectionOnFailure(t *testing.T) {
	ds, mock := newMockDataSource(t, "datasrc_ds_queryfail")
	ctx := context.Background()

	mock.ExpectQuery("SELECT boom").WillReturnError(fmt.Errorf("nope"))

	_, err := ds.Query(ctx, "SELECT boom")
	var qErr *QueryError
	if !errors.As(err, &qErr) {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if n := len(ds.Provider().OpenConnections()); n != 0 {
		t.Fatalf("failed one-shot leaked %d connections", n)
	}
}

func TestDataSource_QueryRowAndScalar(t *testing.T) {
	ds, mock := newMockDataSource(t, "datasrc_ds_scalar")
	ctx := context.Background()

	mock.ExpectQuery("SELECT id, name FROM t").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "ada"))
	mock.ExpectQuery("SELECT COUNT(*) FROM t").WillReturnRows(
		sqlmock.NewRows([]string{"n"}).AddRow(int64(3)))
	mock.ExpectQuery("SELECT id FROM t WHERE 0 = 1").WillReturnRows(
		sqlmock.NewRows([]string{"id"}))

	row, err := ds.QueryRow(ctx, "SELECT id, name FROM t")
	if err != nil {
		t.Fatalf("QueryRow: %v", err)
	}
	if row == nil || row.Get("name") != "ada" {
		t.Fatalf("row = %v", row)
	}

	n, err := ds.QueryScalar(ctx, "SELECT COUNT(*) FROM t")
	if err != nil {
		t.Fatalf("QueryScalar: %v", err)
	}
	if n != int64(3) {
		t.Fatalf("scalar = %v (%T)", n, n)
	}

	empty, err := ds.QueryRow(ctx, "SELECT id FROM t WHERE 0 = 1")
	if err != nil {
		t.Fatalf("QueryRow empty: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected nil row for an empty result")
	}
}

func TestDataSource_ExecuteOneShot(t *testing.T) {
	ds, mock := newMockDataSource(t, "datasrc_ds_exec")
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 5))

	res, err := ds.Execute(ctx, "DELETE FROM t")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.AffectedRows != 5 {
		t.Fatalf("res = %+v", res)
	}
	if n := len(ds.Provider().OpenConnections()); n != 0 {
		t.Fatalf("one-shot execute leaked %d connections", n)
	}
}

func TestDataSource_BeginFailureClosesConnection(t *testing.T) {
	ds, mock := newMockDataSource(t, "datasrc_ds_beginfail")
	ctx := context.Background()

	mock.ExpectBegin().WillReturnError(fmt.Errorf("server gone"))

	_, err := ds.Begin(ctx)
	var txErr *TransactionError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected TransactionError, got %v", err)
	}
	if n := len(ds.Provider().OpenConnections()); n != 0 {
		t.Fatalf("failed begin leaked %d connections", n)
	}
}

func TestDataSource_BeginFailureClosesConnectionInThrowMode(t *testing.T) {
	ds, mock := newMockDataSource(t, "datasrc_ds_beginthrow", func(c *DataSourceConfig) {
		c.ThrowErrors = true
	})
	ctx := context.Background()

	mock.ExpectBegin().WillReturnError(fmt.Errorf("server gone"))

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic in throw mode")
		}
		if n := len(ds.Provider().OpenConnections()); n != 0 {
			t.Fatalf("failed begin leaked %d connections", n)
		}
	}()
	_, _ = ds.Begin(ctx)
}

func TestDataSource_SetThrowErrorsCascadesToOpenConnections(t *testing.T) {
	ds, _ := newMockDataSource(t, "datasrc_ds_cascade")
	ctx := context.Background()

	a, err := ds.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer a.Close()
	b, err := ds.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer b.Close()

	if a.throwErrors || b.throwErrors {
		t.Fatalf("connections should start in return mode")
	}
	ds.SetThrowErrors(true)
	if !a.throwErrors || !b.throwErrors {
		t.Fatalf("mode change must cascade to already-open connections")
	}
	ds.SetThrowErrors(false)
	if a.throwErrors || b.throwErrors {
		t.Fatalf("cascade must apply in both directions")
	}
}

func TestDataSource_BatchExecuteOneShot(t *testing.T) {
	ds, mock := newMockDataSource(t, "datasrc_ds_batch")
	ctx := context.Background()

	mock.ExpectExec("CREATE TABLE a (id INT)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE b (id INT)").WillReturnResult(sqlmock.NewResult(0, 0))

	results, err := ds.BatchExecute(ctx, "CREATE TABLE a (id INT); CREATE TABLE b (id INT);")
	if err != nil {
		t.Fatalf("BatchExecute: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	if n := len(ds.Provider().OpenConnections()); n != 0 {
		t.Fatalf("one-shot batch leaked %d connections", n)
	}
}
