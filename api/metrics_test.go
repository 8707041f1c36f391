package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return tp, exporter, func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	}
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestRequestMetricsLogRecordsSpanAndLogLine(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRequestMetrics(context.Background(), logger, "/api/tasks")
	metrics.start = metrics.start.Add(-50 * time.Millisecond)
	metrics.ObserveAuth(10 * time.Millisecond)
	metrics.ObserveFetch(15 * time.Millisecond)
	metrics.SetTasksReturned(3)

	metrics.Log("/api/tasks", http.StatusOK, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Message != "tasks.request.metrics" {
		t.Fatalf("unexpected message: %s", entry.Message)
	}
	if entry.Data["route"] != "/api/tasks" || entry.Data["status"] != http.StatusOK {
		t.Fatalf("unexpected fields: %#v", entry.Data)
	}
	if entry.Data["tasks_returned"] != 3 {
		t.Fatalf("unexpected tasks_returned: %#v", entry.Data["tasks_returned"])
	}
	if total, ok := entry.Data["total_ms"].(float64); !ok || total <= 0 {
		t.Fatalf("expected positive total_ms, got %#v", entry.Data["total_ms"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "/api/tasks" {
		t.Fatalf("unexpected span name: %s", span.Name)
	}
	spanAttrs := attributesToMap(span.Attributes)
	if code, ok := spanAttrs["http.status_code"].(int64); !ok || code != int64(http.StatusOK) {
		t.Fatalf("unexpected http.status_code on span: %#v", spanAttrs["http.status_code"])
	}
	if returned, ok := spanAttrs["tasks.returned"].(int64); !ok || returned != 3 {
		t.Fatalf("unexpected tasks.returned on span: %#v", spanAttrs["tasks.returned"])
	}
	if span.Status.Code == codes.Error {
		t.Fatalf("expected non-error span status, got %v", span.Status)
	}
}

func TestRequestMetricsLogRecordsErrorStage(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRequestMetrics(context.Background(), logger, "/api/tasks")
	metrics.SetErrorStage("fetch")
	metrics.Log("/api/tasks", http.StatusInternalServerError, errors.New("boom"))

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Data["error_stage"] != "fetch" || entry.Data["error"] != "boom" {
		t.Fatalf("unexpected fields: %#v", entry.Data)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Fatalf("expected error span status, got %v", span.Status.Code)
	}
	spanAttrs := attributesToMap(span.Attributes)
	if spanAttrs["error.stage"] != "fetch" {
		t.Fatalf("unexpected error.stage: %#v", spanAttrs["error.stage"])
	}
}
