package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestStartSpanRecordsError(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartSpan(context.Background(), "search", AttrSeries.String("de-price"))
	RecordError(span, errors.New("no candidate"))
	RecordError(span, nil)
	span.End()

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	got := ended[0]
	if got.Name() != "search" {
		t.Errorf("name = %q", got.Name())
	}
	if got.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", got.Status().Code)
	}
	var found bool
	for _, kv := range got.Attributes() {
		if kv.Key == AttrSeries && kv.Value.AsString() == "de-price" {
			found = true
		}
	}
	if !found {
		t.Errorf("series attribute missing: %v", got.Attributes())
	}
}

func TestRecordErrorNilSpan(t *testing.T) {
	RecordError(nil, errors.New("ignored"))
}
