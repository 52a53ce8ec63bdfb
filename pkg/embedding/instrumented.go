package embedding

import (
	"context"
	"time"

	"github.com/harun/synmem/internal/observability"
	"github.com/harun/synmem/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "synmem.embedding"

// Instrumented records latency, outcome and a span for every call to the
// wrapped provider.
type Instrumented struct {
	inner Provider
}

// Instrument wraps p with metrics and tracing.
func Instrument(p Provider) *Instrumented {
	return &Instrumented{inner: p}
}

func (p *Instrumented) Dimension() int { return p.inner.Dimension() }

func (p *Instrumented) Model() string { return p.inner.Model() }

func (p *Instrumented) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "embedding.generate",
		attribute.String("embedding.model", p.inner.Model()),
		attribute.Int("embedding.input_runes", len([]rune(text))),
	)
	defer span.End()

	start := time.Now()
	vec, err := p.inner.GenerateEmbedding(ctx, text)
	observability.RecordEmbedding(p.inner.Model(), time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return vec, err
}

func (p *Instrumented) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "embedding.generate_batch",
		attribute.String("embedding.model", p.inner.Model()),
		attribute.Int("embedding.batch_size", len(texts)),
	)
	defer span.End()

	start := time.Now()
	vecs, err := p.inner.GenerateEmbeddings(ctx, texts)
	observability.RecordEmbedding(p.inner.Model(), time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return vecs, err
}
