// Package datasrc is a data-access layer between application code and the
// MySQL driver. It provides named, registered data sources with pooled or
// dedicated connections, a uniform connection and transaction lifecycle,
// safe parameterized-query construction, and a batch statement splitter.
//
// # Quick Start
//
//	cfg, err := datasrc.LoadConfigFile("datasources.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := datasrc.Init(cfg); err != nil {
//		log.Fatal(err)
//	}
//	defer datasrc.DisconnectAll(context.Background())
//
//	ds, err := datasrc.GetDataSource("main", "shop")
//	if err != nil {
//		log.Fatal(err)
//	}
//	rows, err := ds.Query(ctx, "SELECT id, name FROM products WHERE price < ?", 100)
//
// # Transactions
//
// The one-shot DataSource helpers each use a fresh connection and are not
// transaction-safe. For atomicity, hold a Connection:
//
//	conn, err := ds.Begin(ctx)
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//	if _, err := conn.Execute(ctx, "UPDATE accounts SET balance = balance - ? WHERE id = ?", 100, from); err != nil {
//		_ = conn.Rollback(ctx)
//		return err
//	}
//	return conn.Commit(ctx)
//
// # Batches
//
// BatchExecute splits a SQL blob into statements, respecting quoting, escape
// characters, $tag$ blocks, and BEGIN ... END bodies, and executes them one
// by one. Every statement gets its own outcome entry; a failure never aborts
// the statements after it.
package datasrc
