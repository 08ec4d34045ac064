package tracer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"o3-search-mcp/internal/infra/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: false}, "o3-search", "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	tp := otel.GetTracerProvider()
	if _, ok := tp.(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider, got %T", tp)
	}
}

func TestSetupNoopExporter(t *testing.T) {
	for _, exp := range []string{"noop", ""} {
		shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: exp}, "o3-search", "test")
		if err != nil {
			t.Fatalf("Setup(%q): %v", exp, err)
		}
		tp := otel.GetTracerProvider()
		if _, ok := tp.(noop.TracerProvider); !ok {
			t.Errorf("Setup(%q): expected noop provider, got %T", exp, tp)
		}
		_ = shutdown(context.Background())
	}
}

func TestSetupStderrWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "stderr"}, "o3-search", "1.2.3", &buf)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, span := StartSpan(context.Background(), "search.invoke")
	span.SetAttributes(StringAttr("tool", "o3-search"))
	SetOK(span)
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "search.invoke") {
		t.Errorf("exported output missing span name: %s", out)
	}
	if !strings.Contains(out, "1.2.3") {
		t.Errorf("exported output missing service version: %s", out)
	}
	otel.SetTracerProvider(noop.NewTracerProvider())
}

func TestSetupUnsupportedExporter(t *testing.T) {
	for _, exp := range []string{"stdout", "jaeger"} {
		if _, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: exp}, "o3-search", "test"); err == nil {
			t.Errorf("Setup(%q): expected error", exp)
		}
	}
}

func TestStartSpanAndHelpers(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())

	ctx, span := StartSpan(context.Background(), "test-span")
	if ctx == nil {
		t.Error("context should not be nil")
	}

	SetOK(span)
	RecordError(span, errors.New("test error"))
	span.End()
}

func TestAttrHelpers(t *testing.T) {
	if s := StringAttr("key", "value"); string(s.Key) != "key" || s.Value.AsString() != "value" {
		t.Errorf("StringAttr = %v", s)
	}
	if i := IntAttr("count", 42); i.Value.AsInt64() != 42 {
		t.Errorf("IntAttr = %v", i)
	}
	if b := BoolAttr("ok", true); !b.Value.AsBool() {
		t.Errorf("BoolAttr = %v", b)
	}
}
