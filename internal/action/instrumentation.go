package action

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/jakesimonds/Creator/internal/action"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)

	executions, _ = meter.Int64Counter("creator.action.executions",
		metric.WithDescription("Generation invocations by outcome"))
	executionLatency, _ = meter.Float64Histogram("creator.action.duration",
		metric.WithUnit("s"), metric.WithDescription("Wall time from hand-off to terminal effect"))
)
