package obs

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
)

func TestMetricsRegisteredAtInit(t *testing.T) {
	if Metrics.HeapWrites == nil {
		t.Error("expected HeapWrites counter to be registered")
	}
	if Metrics.HeapReads == nil {
		t.Error("expected HeapReads counter to be registered")
	}
	if Metrics.IndexOps == nil {
		t.Error("expected IndexOps counter to be registered")
	}
	if Metrics.LockWaitMs == nil {
		t.Error("expected LockWaitMs histogram to be registered")
	}
	if Metrics.NodePulls == nil {
		t.Error("expected NodePulls counter to be registered")
	}
	if Metrics.JoinBufferRows == nil {
		t.Error("expected JoinBufferRows histogram to be registered")
	}
}

func TestMetricsAreUsableAgainstTheNoopProvider(t *testing.T) {
	ctx := context.Background()
	Metrics.HeapWrites.Add(ctx, 1, metric.WithAttributes(TableAttr("orders")))
	Metrics.LockWaitMs.Record(ctx, 12.5)
}

func TestTableAttr(t *testing.T) {
	kv := TableAttr("orders")
	if string(kv.Key) != "dbxp.table" {
		t.Errorf("key: got %q, want dbxp.table", kv.Key)
	}
	if kv.Value.AsString() != "orders" {
		t.Errorf("value: got %q, want orders", kv.Value.AsString())
	}
}

func TestStartSpanReturnsAUsableSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "heap.write_row", TableAttr("orders"))
	defer span.End()
	if ctx == nil {
		t.Error("expected a non-nil context")
	}
}
