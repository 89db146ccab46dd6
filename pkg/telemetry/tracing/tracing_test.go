package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/epigate/pkg/config"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prev := otel.GetTracerProvider()
	rec := tracetest.NewSpanRecorder()
	Install(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestNew_Disabled(t *testing.T) {
	tr, err := New(&config.TracingConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Enabled() {
		t.Error("Enabled() = true")
	}
	ctx, span := tr.Start(context.Background(), "op")
	span.End()
	if TraceID(ctx) != "" {
		t.Error("disabled tracer produced a valid trace ID")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(nil, "x"); err == nil {
		t.Error("New(nil) error = nil")
	}
	_, err := New(&config.TracingConfig{Enabled: true, Sampler: "sometimes", Exporter: "otlp"}, "x")
	if err == nil {
		t.Error("unknown sampler accepted")
	}
	_, err = New(&config.TracingConfig{Enabled: true, Sampler: "always", Exporter: "zipkin"}, "x")
	if err == nil {
		t.Error("unknown exporter accepted")
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{SamplerAlways, 0, false},
		{SamplerNever, 0, false},
		{SamplerRatio, 0.25, false},
		{SamplerRatio, 1.5, true},
		{"random", 0, true},
	}
	for _, tt := range tests {
		if _, err := newSampler(tt.strategy, tt.ratio); (err != nil) != tt.wantErr {
			t.Errorf("newSampler(%q, %v) error = %v, wantErr %v", tt.strategy, tt.ratio, err, tt.wantErr)
		}
	}
}

func TestHTTPMiddleware(t *testing.T) {
	rec := installRecorder(t)

	var seen string
	h := HTTPMiddleware("/verify", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/verify", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if seen != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("handler trace ID = %q, want the incoming one", seen)
	}
	if got := w.Header().Get("X-Trace-ID"); got != seen {
		t.Errorf("X-Trace-ID = %q", got)
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "HTTP /verify" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	found := false
	for _, kv := range spans[0].Attributes() {
		if kv == attribute.Int("http.response.status_code", http.StatusTeapot) {
			found = true
		}
	}
	if !found {
		t.Errorf("status attribute missing: %v", spans[0].Attributes())
	}
}

func TestEnd(t *testing.T) {
	rec := installRecorder(t)
	tracer := otel.Tracer(InstrumentationName)

	_, ok := tracer.Start(context.Background(), "ok")
	End(ok, nil)
	_, failed := tracer.Start(context.Background(), "failed")
	End(failed, errors.New("storage down"))

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("ok span status = %v", spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "storage down" {
		t.Errorf("failed span status = %v", spans[1].Status())
	}
	if len(spans[1].Events()) == 0 {
		t.Error("error not recorded as a span event")
	}
}
