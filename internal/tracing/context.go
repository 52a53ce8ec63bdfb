// Package tracing carries request identity through a context.Context and
// exposes the OpenTelemetry tracer used by the memory operations.
package tracing

import (
	"context"

	"github.com/google/uuid"
)

type traceKey struct{}

// TraceContext identifies one memory operation and who issued it.
type TraceContext struct {
	TraceID   string
	RequestID string
	AgentID   string // browser agent issuing the call, if known
	Origin    string // entry point: cli, ingest, daemon, maintenance
}

// fields lists the set values in log order.
func (tc TraceContext) fields() [][2]string {
	out := make([][2]string, 0, 4)
	for _, f := range [...][2]string{
		{"trace_id", tc.TraceID},
		{"request_id", tc.RequestID},
		{"agent_id", tc.AgentID},
		{"origin", tc.Origin},
	} {
		if f[1] != "" {
			out = append(out, f)
		}
	}
	return out
}

// fill copies the fields of src that tc lacks.
func (tc *TraceContext) fill(src TraceContext) {
	if tc.TraceID == "" {
		tc.TraceID = src.TraceID
	}
	if tc.RequestID == "" {
		tc.RequestID = src.RequestID
	}
	if tc.AgentID == "" {
		tc.AgentID = src.AgentID
	}
	if tc.Origin == "" {
		tc.Origin = src.Origin
	}
}

// FromContext returns the identity stored in ctx, zero if none.
func FromContext(ctx context.Context) TraceContext {
	if ctx == nil {
		return TraceContext{}
	}
	tc, _ := ctx.Value(traceKey{}).(TraceContext)
	return tc
}

// NewContext stores tc in ctx. Empty fields of tc keep the values ctx
// already carries.
func NewContext(ctx context.Context, tc TraceContext) context.Context {
	tc.fill(FromContext(ctx))
	return context.WithValue(ctx, traceKey{}, tc)
}

func update(ctx context.Context, set func(*TraceContext)) context.Context {
	tc := FromContext(ctx)
	set(&tc)
	return context.WithValue(ctx, traceKey{}, tc)
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return update(ctx, func(tc *TraceContext) { tc.TraceID = id })
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return update(ctx, func(tc *TraceContext) { tc.RequestID = id })
}

func WithAgentID(ctx context.Context, id string) context.Context {
	return update(ctx, func(tc *TraceContext) { tc.AgentID = id })
}

func WithOrigin(ctx context.Context, origin string) context.Context {
	return update(ctx, func(tc *TraceContext) { tc.Origin = origin })
}

func GetTraceID(ctx context.Context) string { return FromContext(ctx).TraceID }

func GetRequestID(ctx context.Context) string { return FromContext(ctx).RequestID }

func GetAgentID(ctx context.Context) string { return FromContext(ctx).AgentID }

func GetOrigin(ctx context.Context) string { return FromContext(ctx).Origin }

// NewRequestContext marks the start of one operation. The trace id is kept
// when present, the request id is always fresh, and origin is only replaced
// when non-empty.
func NewRequestContext(ctx context.Context, origin string) context.Context {
	return update(ctx, func(tc *TraceContext) {
		if tc.TraceID == "" {
			tc.TraceID = uuid.NewString()
		}
		tc.RequestID = uuid.NewString()
		if origin != "" {
			tc.Origin = origin
		}
	})
}
