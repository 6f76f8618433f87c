// Package obs wires the storage and query layers to OpenTelemetry metrics
// and tracing. Instruments are registered against the global provider at
// init time, so they forward to a real exporter once one is installed by
// cmd/dbxp, and are safe no-ops otherwise.
package obs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/dbxp/spartan"

// Tracer is the shared tracer for storage and executor spans.
var Tracer = otel.Tracer(instrumentationName)

// Metrics holds the counters and histograms shared across the heap, index,
// table and query-executor packages.
var Metrics struct {
	HeapWrites     metric.Int64Counter
	HeapReads      metric.Int64Counter
	IndexOps       metric.Int64Counter
	LockWaitMs     metric.Float64Histogram
	NodePulls      metric.Int64Counter
	JoinBufferRows metric.Int64Histogram
}

func init() {
	m := otel.Meter(instrumentationName)
	Metrics.HeapWrites, _ = m.Int64Counter("dbxp.heap.writes",
		metric.WithDescription("Rows appended to a heap file"),
		metric.WithUnit("{row}"))
	Metrics.HeapReads, _ = m.Int64Counter("dbxp.heap.reads",
		metric.WithDescription("Rows returned from a heap file scan"),
		metric.WithUnit("{row}"))
	Metrics.IndexOps, _ = m.Int64Counter("dbxp.index.ops",
		metric.WithDescription("Index insert/delete/update/seek operations"),
		metric.WithUnit("{op}"))
	Metrics.LockWaitMs, _ = m.Float64Histogram("dbxp.share.lock_wait_ms",
		metric.WithDescription("Time spent waiting to acquire a table share lock"),
		metric.WithUnit("ms"))
	Metrics.NodePulls, _ = m.Int64Counter("dbxp.plan.node_pulls",
		metric.WithDescription("get_next calls against a query-tree node"),
		metric.WithUnit("{pull}"))
	Metrics.JoinBufferRows, _ = m.Int64Histogram("dbxp.plan.join_buffer_rows",
		metric.WithDescription("Rows materialized into a sort-merge join buffer"),
		metric.WithUnit("{row}"))
}

// TableAttr returns the standard attribute set used on storage spans/metrics.
func TableAttr(table string) attribute.KeyValue {
	return attribute.String("dbxp.table", table)
}

// StartSpan is a thin wrapper kept so call sites read the same way across
// the storage and plan packages.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
