package otel_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"wmscore/internal/platform/otel"
	"wmscore/pkg/domain"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), "test-service", otel.Config{Enabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenDisabled(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), "test-service", otel.Config{Endpoint: "http://localhost:4318"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address so no export happens.
	shutdown, err := otel.Setup(context.Background(), "test-service", otel.Config{Enabled: true, Endpoint: "http://192.0.2.1:4318"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestTracerRecordsOperationSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tracer := otel.NewTracer(tp)

	_, span := tracer.Start(context.Background(), "allocate")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "outbound_single")
	span.End(&domain.OpError{Op: "outbound_single", Err: domain.ErrAlreadyShipped})

	ended := rec.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	if ended[0].Name() != "wms.allocate" || ended[0].Status().Code == codes.Error {
		t.Fatalf("unexpected first span %s %v", ended[0].Name(), ended[0].Status())
	}
	if ended[1].Status().Code != codes.Error || ended[1].Status().Description != "already_shipped" {
		t.Fatalf("expected error status with kind, got %+v", ended[1].Status())
	}
}
