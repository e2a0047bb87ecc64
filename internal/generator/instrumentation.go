package generator

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/jakesimonds/Creator/internal/generator"

var tracer trace.Tracer = otel.Tracer(scopeName)
