package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Pipeline stage span names.
const (
	StageExtract  = "stockcast.extract"
	StageFeatures = "stockcast.features"
	StageTrain    = "stockcast.train"
	StagePredict  = "stockcast.predict"
	StageReport   = "stockcast.report"
	StageExport   = "stockcast.export"
)

// StageTracer wraps a tracer with helpers for the forecast pipeline stages.
type StageTracer struct {
	tracer trace.Tracer
}

// NewStageTracer creates a StageTracer. A nil tracer is replaced by a no-op.
func NewStageTracer(tracer trace.Tracer) *StageTracer {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(ServiceName)
	}
	return &StageTracer{tracer: tracer}
}

// StartStage opens a span for one pipeline stage.
func (st *StageTracer) StartStage(ctx context.Context, stage string, runID string) (context.Context, trace.Span) {
	return st.tracer.Start(ctx, stage, trace.WithAttributes(attribute.String("stockcast.run_id", runID)))
}

// EndStage records the stage counters and outcome, then ends the span.
func (st *StageTracer) EndStage(span trace.Span, counts map[string]int, err error) {
	for k, v := range counts {
		span.SetAttributes(attribute.Int("stockcast."+k, v))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
