package datasrc

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/datasrclab/datasrc"
	instrumentationVersion = "v0.1.0"
)

var tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion))

// EnableTelemetry enables or disables OpenTelemetry tracing for operations
// on connections issued by this data source.
func (ds *DataSource) EnableTelemetry(enabled bool) {
	if ds == nil {
		return
	}
	ds.telemetryEnabled = enabled
}

func (c *Connection) telemetryOn() bool {
	return c.ds != nil && c.ds.telemetryEnabled
}

// startSpan opens a span with common database attributes. When telemetry is
// off it returns the ambient span so finishSpan has nothing to end.
func (c *Connection) startSpan(ctx context.Context, operation, query string) (context.Context, trace.Span) {
	if !c.telemetryOn() {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := tracer.Start(ctx, "datasrc."+operation)
	span.SetAttributes(
		attribute.String("db.system", "mysql"),
		attribute.String("db.operation", operation),
		attribute.String("datasrc.datasource", c.ds.id),
		attribute.String("datasrc.connection", c.id),
	)
	if query != "" {
		span.SetAttributes(attribute.String("db.statement", query))
	}
	return ctx, span
}

func (c *Connection) finishSpan(span trace.Span, err error) {
	if !c.telemetryOn() {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
