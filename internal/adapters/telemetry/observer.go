// Package telemetry reports engine steps as OpenTelemetry spans.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/nest/internal/core/ports"
)

// TracerName is the instrumentation name of nest spans.
const TracerName = "go.trai.ch/nest"

var _ ports.StepObserver = (*Observer)(nil)

// Observer implements ports.StepObserver by opening a span per step.
type Observer struct {
	tracer trace.Tracer
	parent context.Context

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewObserver creates an Observer using the global tracer provider.
// Spans are children of the span in ctx, if any.
func NewObserver(ctx context.Context) *Observer {
	return &Observer{
		tracer: otel.Tracer(TracerName),
		parent: ctx,
		spans:  make(map[string]trace.Span),
	}
}

// OnStep opens the span of name on start and ends it on end or error.
func (o *Observer) OnStep(name string, phase ports.StepPhase) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch phase {
	case ports.PhaseStart:
		if _, open := o.spans[name]; open {
			return
		}
		_, span := o.tracer.Start(o.parent, name)
		o.spans[name] = span
	case ports.PhaseEnd, ports.PhaseError:
		span, open := o.spans[name]
		if !open {
			return
		}
		delete(o.spans, name)
		if phase == ports.PhaseError {
			span.SetStatus(codes.Error, name+" failed")
		}
		span.End()
	}
}

// Close ends every span still open, marking them as failed.
func (o *Observer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for name, span := range o.spans {
		span.SetStatus(codes.Error, name+" interrupted")
		span.End()
		delete(o.spans, name)
	}
}
