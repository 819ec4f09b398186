package observability

import (
	"context"
	"errors"
	"testing"
)

func TestNewTracer(t *testing.T) {
	tests := []struct {
		name   string
		config TraceConfig
	}{
		{
			name: "with endpoint",
			config: TraceConfig{
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
				Endpoint:       "localhost:4317",
				EnableInsecure: true,
			},
		},
		{
			name:   "without endpoint (no-op)",
			config: TraceConfig{ServiceVersion: "1.0.0"},
		},
		{
			name: "with sampling",
			config: TraceConfig{
				ServiceName:    "test-service",
				Endpoint:       "localhost:4317",
				EnableInsecure: true,
				SamplingRate:   0.5,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, shutdown := NewTracer(tt.config)
			defer func() { _ = shutdown(context.Background()) }()

			if tracer == nil {
				t.Fatal("NewTracer() returned nil")
			}
			if tracer.tracer == nil {
				t.Error("tracer.tracer is nil")
			}
			if tracer.config.ServiceName == "" {
				t.Error("expected default service name")
			}
		})
	}
}

func TestTracerSpans(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	defer func() { _ = shutdown(context.Background()) }()

	ctx, span := tracer.TraceDispatch(context.Background(), "note", "abc")
	if ctx == nil || span == nil {
		t.Fatal("TraceDispatch() returned nil")
	}
	tracer.RecordError(span, errors.New("boom"))
	tracer.RecordError(span, nil)
	span.End()

	_, reply := tracer.TraceReply(ctx, "req", 3)
	reply.End()

	_, publish := tracer.TracePublish(ctx, 6300, 2)
	publish.End()
}

func TestNilTracerIsSafe(t *testing.T) {
	var tracer *Tracer
	ctx, span := tracer.Start(context.Background(), "noop")
	if ctx == nil || span == nil {
		t.Fatal("expected non-nil context and span")
	}
	if span.IsRecording() {
		t.Fatal("nil tracer must not record")
	}
	span.End()
}

func TestTracerZeroSamplingRateRecordsNothing(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{
		Endpoint:       "localhost:4317",
		EnableInsecure: true,
		SamplingRate:   0,
	})
	defer func() { _ = shutdown(context.Background()) }()

	if tracer.provider == nil {
		t.Fatal("expected an SDK tracer provider")
	}
	_, span := tracer.TraceDispatch(context.Background(), "note", "abc")
	defer span.End()
	if span.SpanContext().IsSampled() || span.IsRecording() {
		t.Fatal("zero sampling rate must not sample spans")
	}
}
