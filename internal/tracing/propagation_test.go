package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "trace-123")
	ctx = WithRequestID(ctx, "req-456")
	ctx = WithAgentID(ctx, "agent-789")

	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("memory stored")

	out := buf.String()
	assert.Contains(t, out, `"trace_id":"trace-123"`)
	assert.Contains(t, out, `"request_id":"req-456"`)
	assert.Contains(t, out, `"agent_id":"agent-789"`)
	assert.NotContains(t, out, "origin", "unset fields are not logged")
}

func TestLoggerFromContext_EmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggerFromContext(context.Background(), zerolog.New(&buf))
	logger.Info().Msg("plain")

	assert.NotContains(t, buf.String(), "trace_id")
}

func TestStartSpanSetsTraceID(t *testing.T) {
	require.NoError(t, Init(context.Background(), Options{ServiceName: "synmem-test", ServiceVersion: "dev", SampleRatio: 1}))
	t.Cleanup(func() { _ = Shutdown(context.Background()) })

	ctx, span := StartSpan(context.Background(), "synmem.test", "test.span")
	defer span.End()
	assert.NotEmpty(t, GetTraceID(ctx))
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))

	preset := WithTraceID(context.Background(), "caller-trace")
	ctx, span2 := StartSpan(preset, "synmem.test", "test.span")
	defer span2.End()
	assert.Equal(t, "caller-trace", GetTraceID(ctx), "caller trace id is preserved")
}
