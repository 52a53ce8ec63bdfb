package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithAgentID(ctx, "browser-agent")
	ctx = WithOrigin(ctx, "cli")

	assert.Equal(t, "trace-1", GetTraceID(ctx))
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "browser-agent", GetAgentID(ctx))
	assert.Equal(t, "cli", GetOrigin(ctx))
}

func TestWithDoesNotMutateParent(t *testing.T) {
	parent := WithTraceID(context.Background(), "parent")
	child := WithTraceID(parent, "child")

	assert.Equal(t, "parent", GetTraceID(parent))
	assert.Equal(t, "child", GetTraceID(child))
}

func TestEmptyContext(t *testing.T) {
	assert.Equal(t, TraceContext{}, FromContext(context.Background()))
}

func TestNewContext(t *testing.T) {
	base := WithOrigin(context.Background(), "ingest")
	ctx := NewContext(base, TraceContext{TraceID: "t", RequestID: "r", AgentID: "a"})

	assert.Equal(t, TraceContext{TraceID: "t", RequestID: "r", AgentID: "a", Origin: "ingest"}, FromContext(ctx))
}

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background(), "daemon")
	assert.NotEmpty(t, GetTraceID(ctx))
	assert.NotEmpty(t, GetRequestID(ctx))
	assert.Equal(t, "daemon", GetOrigin(ctx))

	child := NewRequestContext(ctx, "")
	assert.Equal(t, GetTraceID(ctx), GetTraceID(child), "trace id is kept")
	assert.NotEqual(t, GetRequestID(ctx), GetRequestID(child), "each request gets its own id")
	assert.Equal(t, "daemon", GetOrigin(child), "origin is inherited when not overridden")
}
