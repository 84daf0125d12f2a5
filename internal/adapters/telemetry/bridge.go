package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/nest/internal/core/ports"
)

// Bridge implements sdktrace.SpanProcessor and reports finished steps to a logger.
type Bridge struct {
	logger ports.Logger
}

// NewBridge returns a new Bridge.
func NewBridge(logger ports.Logger) *Bridge {
	return &Bridge{logger: logger}
}

// OnStart does nothing.
func (b *Bridge) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

// OnEnd logs the span name and duration.
func (b *Bridge) OnEnd(s sdktrace.ReadOnlySpan) {
	if !s.SpanContext().IsValid() {
		return
	}
	elapsed := s.EndTime().Sub(s.StartTime()).Round(time.Millisecond)
	if s.Status().Code == codes.Error {
		b.logger.Warn(fmt.Sprintf("%s failed after %s", s.Name(), elapsed))
		return
	}
	b.logger.Info(fmt.Sprintf("%s done in %s", s.Name(), elapsed))
}

// ForceFlush does nothing.
func (b *Bridge) ForceFlush(context.Context) error {
	return nil
}

// Shutdown does nothing.
func (b *Bridge) Shutdown(context.Context) error {
	return nil
}

// Setup installs a global tracer provider that forwards spans to the bridge.
// The returned function shuts the provider down.
func Setup(bridge *Bridge) func(context.Context) error {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(bridge))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
