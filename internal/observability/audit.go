package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/harun/synmem/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent is one line of the mutation audit log.
type AuditEvent struct {
	Type      string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor,omitempty"` // agent id or origin
	Action    string            `json:"action"`          // "store", "delete"
	MemoryID  string            `json:"memory_id,omitempty"`
	Status    string            `json:"status"` // "success", "failure", "missing"
	Metadata  map[string]string `json:"metadata,omitempty"`
	TraceID   string            `json:"trace_id,omitempty"`
}

// AuditLogger records mutations of the memory store.
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   io.Closer
}

var (
	auditMu   sync.RWMutex
	auditInst = NewAuditLogger(zerolog.Nop())
)

// NewAuditLogger writes audit events through logger.
func NewAuditLogger(logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// GetAuditLogger returns the global audit logger. It discards events until
// InitAuditLogger or SetAuditLogger is called.
func GetAuditLogger() *AuditLogger {
	auditMu.RLock()
	defer auditMu.RUnlock()
	return auditInst
}

// SetAuditLogger replaces the global audit logger.
func SetAuditLogger(a *AuditLogger) {
	auditMu.Lock()
	auditInst = a
	auditMu.Unlock()
}

// InitAuditLogger points the global audit logger at an append-only file.
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	a := NewAuditLogger(zerolog.New(file).With().Timestamp().Logger())
	a.file = file
	SetAuditLogger(a)
	return nil
}

// Record writes event and, when ctx carries a span, adds it as a span event.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Actor == "" {
		event.Actor = tracing.GetAgentID(ctx)
	}
	if event.Actor == "" {
		event.Actor = tracing.GetOrigin(ctx)
	}
	event.TraceID = tracing.GetTraceID(ctx)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent("audit."+event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.memory_id", event.MemoryID),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("type", event.Type).
		Time("event_time", event.Timestamp).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("memory_id", event.MemoryID).
		Str("status", event.Status).
		Str("trace_id", event.TraceID)

	if len(event.Metadata) > 0 {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// RecordMemoryAudit records a store or delete against the global audit log.
func RecordMemoryAudit(ctx context.Context, action, memoryID, status string, metadata map[string]string) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "memory",
		Action:   action,
		MemoryID: memoryID,
		Status:   status,
		Metadata: metadata,
	})
}
