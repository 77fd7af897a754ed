package datasrc

import "database/sql"

// Row is one result record with driver-reported field order and names.
type Row struct {
	columns []string // shared across the result set
	values  []any
}

// Columns returns the field names in driver order.
func (r *Row) Columns() []string { return r.columns }

// Get returns the value of the named field, or nil when absent.
func (r *Row) Get(name string) any {
	for i, c := range r.columns {
		if c == name {
			return r.values[i]
		}
	}
	return nil
}

// Index returns the value at position i in driver order.
func (r *Row) Index(i int) any { return r.values[i] }

// Len returns the field count.
func (r *Row) Len() int { return len(r.values) }

// Values returns the ordered field values.
func (r *Row) Values() []any { return r.values }

// ExecResult is the outcome of a statement that does not return rows.
// Fields are zero when not applicable to the statement.
type ExecResult struct {
	AffectedRows int64 `json:"affectedRows"`
	InsertID     int64 `json:"insertId"`
}

// BatchResult is the per-statement outcome of a batch execution: either the
// exec result or the error the statement produced.
type BatchResult struct {
	Statement string
	Result    ExecResult
	Err       error
}

// scanRows drains rows into buffered Row records. Values arrive as the
// driver reports them; []byte columns are copied since the driver may reuse
// its buffers between scans.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				cp := make([]byte, len(b))
				copy(cp, b)
				values[i] = cp
			}
		}
		out = append(out, Row{columns: cols, values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func execResult(res sql.Result) ExecResult {
	var out ExecResult
	if n, err := res.RowsAffected(); err == nil {
		out.AffectedRows = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.InsertID = id
	}
	return out
}
