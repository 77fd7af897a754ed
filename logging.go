package datasrc

import (
	"context"
	"log/slog"
	"os"
	"time"
)

var defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// SetLogger replaces the logger used for this data source's console logs.
func (ds *DataSource) SetLogger(logger *slog.Logger) {
	if ds == nil {
		return
	}
	ds.logger = logger
}

// SetSlowQueryThreshold makes queries slower than d log at warn level.
// Zero disables slow-query detection.
func (ds *DataSource) SetSlowQueryThreshold(d time.Duration) {
	if ds == nil {
		return
	}
	ds.slowQueryThreshold = d
}

// logOp emits one structured log line per operation when the data source has
// console logs enabled. Argument values are never logged, only their count.
func (c *Connection) logOp(ctx context.Context, operation, query string, argCount int, duration time.Duration, err error) {
	ds := c.ds
	if ds == nil || !ds.showConsoleLogs {
		return
	}
	logger := ds.logger
	if logger == nil {
		logger = defaultLogger
	}

	attrs := []slog.Attr{
		slog.String("datasource", ds.id),
		slog.String("connection", c.id),
		slog.String("operation", operation),
		slog.String("query", query),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	}
	if argCount > 0 {
		attrs = append(attrs, slog.Int("arg_count", argCount))
	}
	if err != nil {
		attrs = append(attrs, slog.String("status", "error"), slog.String("error", err.Error()))
		if num := mysqlErrNumber(err); num != 0 {
			attrs = append(attrs, slog.Int("error_code", int(num)))
		}
	} else {
		attrs = append(attrs, slog.String("status", "success"))
	}

	switch {
	case ds.slowQueryThreshold > 0 && duration > ds.slowQueryThreshold:
		logger.LogAttrs(ctx, slog.LevelWarn, "slow query detected", attrs...)
	case err != nil:
		logger.LogAttrs(ctx, slog.LevelError, "operation failed", attrs...)
	default:
		logger.LogAttrs(ctx, slog.LevelInfo, "operation completed", attrs...)
	}
}
