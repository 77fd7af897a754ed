package datasrc

import (
	"errors"
	"fmt"
	"time"

	mysql "github.com/go-sql-driver/mysql"
)

// ConfigurationError reports invalid or incomplete configuration, including
// an envKey that does not resolve to an environment variable.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("datasrc: %s: configuration error: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NotFoundError reports a data-source identifier that is still unknown after
// the registry's one-time lazy initialization retry.
type NotFoundError struct {
	ID     string
	Schema string
}

func (e *NotFoundError) Error() string {
	if e.Schema != "" {
		return fmt.Sprintf("datasrc: data source %q (schema %q) not found", e.ID, e.Schema)
	}
	return fmt.Sprintf("datasrc: data source %q not found", e.ID)
}

// ConnectionError reports a failed attempt to establish a physical connection.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("datasrc: %s: connection failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError reports that pool acquisition exceeded the configured deadline.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("datasrc: %s: no connection available within %s: %v", e.Op, e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// QueryError reports a driver rejection of a query or exec. SQL carries the
// triggering statement so failures are diagnosable without a stack capture.
type QueryError struct {
	Op  string
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("datasrc: %s failed for %q: %v", e.Op, e.SQL, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Number returns the MySQL server error number, or 0 when the underlying
// error did not originate from the server.
func (e *QueryError) Number() uint16 { return mysqlErrNumber(e.Err) }

// TransactionError reports a driver rejection of begin, commit, or rollback.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("datasrc: %s failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// StateError reports an operation invoked in an invalid lifecycle state,
// such as querying a closed connection or beginning a transaction twice.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("datasrc: %s: %s", e.Op, e.Reason)
}

const (
	reasonNotOpen     = "connection not open"
	reasonAlreadyInTx = "already in a transaction"
	reasonNotInTx     = "not in a transaction"
)

func mysqlErrNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}
