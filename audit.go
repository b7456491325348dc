package goSession

import (
	"context"
	"io"
	"log/slog"

	"github.com/MrEthical07/goSession/internal/audit"
)

// AuditEvent is a single audit record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink forwards audit events to a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes audit events as newline-delimited JSON.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink writes audit events to a *slog.Logger.
type SlogSink = audit.SlogSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

// NewSlogSink returns a sink logging through logger.
func NewSlogSink(logger *slog.Logger) *SlogSink { return audit.NewSlogSink(logger) }

const (
	auditEventSessionInitiated      = "session_initiated"
	auditEventSessionInitiateFailed = "session_initiate_failed"
	auditEventSessionVerified       = "session_verified"
	auditEventSessionRejected       = "session_rejected"
)

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, reason string) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        ClientIP(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Reason:    reason,
	})
}
