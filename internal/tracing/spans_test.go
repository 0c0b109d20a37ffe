package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupSpanRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter), sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		tp.Shutdown(context.Background())
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
	})
	return exporter
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestStartTierSpan(t *testing.T) {
	exporter := setupSpanRecorder(t)

	ctx, span := StartTierSpan(context.Background(), "master", "snapshot")
	if !trace.SpanFromContext(ctx).SpanContext().IsValid() {
		t.Error("expected valid span in context")
	}
	SetCacheHit(ctx, true)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "cache.master.snapshot" {
		t.Errorf("span name: got %q", spans[0].Name)
	}
	if v, ok := attrValue(spans[0].Attributes, "cache.tier"); !ok || v.AsString() != "snapshot" {
		t.Errorf("cache.tier: got %v", v)
	}
	if v, ok := attrValue(spans[0].Attributes, "cache.hit"); !ok || !v.AsBool() {
		t.Errorf("cache.hit: got %v", v)
	}
}

func TestStartQuerySpan(t *testing.T) {
	exporter := setupSpanRecorder(t)

	ctx, span := StartQuerySpan(context.Background(), "pivot", "abc123")
	SetRows(ctx, 42)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "query.pivot" {
		t.Fatalf("unexpected spans: %+v", spans)
	}
	if v, _ := attrValue(spans[0].Attributes, "query.fingerprint"); v.AsString() != "abc123" {
		t.Errorf("query.fingerprint: got %q", v.AsString())
	}
	if v, _ := attrValue(spans[0].Attributes, "rows"); v.AsInt64() != 42 {
		t.Errorf("rows: got %d", v.AsInt64())
	}
}

func TestStartSourceSpan_IsClient(t *testing.T) {
	exporter := setupSpanRecorder(t)

	_, span := StartSourceSpan(context.Background(), "proj.ds.table")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].SpanKind != trace.SpanKindClient {
		t.Errorf("span kind: got %v", spans[0].SpanKind)
	}
}

func TestStartRefreshSpan(t *testing.T) {
	exporter := setupSpanRecorder(t)

	_, span := StartRefreshSpan(context.Background(), "promote", "run-1")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "refresh.promote" {
		t.Fatalf("unexpected spans: %+v", spans)
	}
	if v, _ := attrValue(spans[0].Attributes, "refresh.run_id"); v.AsString() != "run-1" {
		t.Errorf("refresh.run_id: got %q", v.AsString())
	}
}

func TestRecordError_NilDoesNotPanic(t *testing.T) {
	RecordError(context.Background(), nil)
}

func TestRecordError_RecordsOnSpan(t *testing.T) {
	exporter := setupSpanRecorder(t)

	ctx, span := Tracer().Start(context.Background(), "test")
	RecordError(ctx, errors.New("test error"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected error event on span")
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status.Code)
	}
}
