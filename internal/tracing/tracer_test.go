package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/allaspectsdev/icarus/internal/config"
)

func resetGlobals(t *testing.T) {
	t.Cleanup(func() {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
	})
}

func TestInit_StdoutExportsSpans(t *testing.T) {
	resetGlobals(t)
	var buf bytes.Buffer

	shutdown, err := Init(context.Background(), Options{
		ServiceName: "icarus-test",
		Version:     "1.0.0",
		Exporter:    ExporterStdout,
		SampleRate:  1,
		Writer:      &buf,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "master.load")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "master.load") || !strings.Contains(out, "icarus-test") {
		t.Errorf("exported output missing span or service name:\n%s", out)
	}
}

func TestInit_ZeroRateDropsRootSpans(t *testing.T) {
	resetGlobals(t)
	var buf bytes.Buffer

	shutdown, err := Init(context.Background(), Options{Exporter: ExporterStdout, SampleRate: 0, Writer: &buf})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, span := Tracer().Start(context.Background(), "dropped")
	if !span.SpanContext().TraceID().IsValid() {
		t.Error("expected a valid trace ID even when not sampled")
	}
	if span.SpanContext().IsSampled() {
		t.Error("expected span not to be sampled at rate 0")
	}
	span.End()
	shutdown(context.Background())

	if strings.Contains(buf.String(), "dropped") {
		t.Error("unsampled span should not be exported")
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	if _, err := Init(context.Background(), Options{Exporter: "zipkin"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestInit_SetsW3CPropagator(t *testing.T) {
	resetGlobals(t)
	shutdown, err := Init(context.Background(), Options{Exporter: ExporterStdout, Writer: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer shutdown(context.Background())

	found := false
	for _, f := range otel.GetTextMapPropagator().Fields() {
		if f == "traceparent" {
			found = true
		}
	}
	if !found {
		t.Error("expected traceparent in propagator fields")
	}
}

func TestNewExporter_OTLP(t *testing.T) {
	for _, name := range []string{ExporterOTLPGRPC, ExporterOTLPHTTP} {
		exp, err := newExporter(context.Background(), Options{Exporter: name, Endpoint: "localhost:4317", Insecure: true})
		if err != nil || exp == nil {
			t.Errorf("newExporter(%s): %v", name, err)
		}
	}
}

func TestFromConfig(t *testing.T) {
	o := FromConfig(config.TracingConfig{
		Exporter:    "otlp-http",
		Endpoint:    "collector:4318",
		ServiceName: "icarus",
		SampleRate:  0.25,
		Insecure:    true,
	}, "v1.2.3")
	if o.Exporter != ExporterOTLPHTTP || o.Endpoint != "collector:4318" || o.Version != "v1.2.3" || o.SampleRate != 0.25 || !o.Insecure {
		t.Errorf("FromConfig: got %+v", o)
	}
}
