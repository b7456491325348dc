package goSession

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Engine issues and verifies stateless session tokens.
//
// An Engine is safe for concurrent use. It holds no per-session state; every
// Verify re-derives identity from the token and a fresh store lookup.
type Engine struct {
	config  Config
	codec   *jwt.Codec
	flows   flows.Deps[UserRecord]
	metrics *Metrics
	audit   *audit.Dispatcher
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Initiate checks the credentials and issues a token for the user.
//
// identifier matches either username or email. Any credential problem yields
// ErrInvalidCredentials. Store failures yield an error wrapping
// ErrUserStoreUnavailable.
func (e *Engine) Initiate(ctx context.Context, identifier, secret string) (*SessionResult, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.tracer.Start(ctx, "goSession.Initiate", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	start := time.Now()
	res, err := flows.RunInitiate(ctx, e.flows.Initiate, identifier, secret)
	e.metrics.Observe(MetricInitiateLatency, time.Since(start))

	if err != nil {
		e.recordInitiateFailure(ctx, span, res.UserID, res.Reason, err)
		return nil, err
	}

	e.metrics.Inc(MetricInitiateSuccess)
	e.emitAudit(ctx, auditEventSessionInitiated, true, res.UserID, "")
	span.SetAttributes(attribute.String("session.user_id", res.UserID))
	e.logger.DebugContext(ctx, "session initiated", "user_id", res.UserID, "expires", res.Expires)

	return &SessionResult{
		User:    res.User,
		Token:   res.Token,
		Expires: res.Expires,
	}, nil
}

func (e *Engine) recordInitiateFailure(ctx context.Context, span trace.Span, userID, reason string, err error) {
	span.SetAttributes(attribute.String("session.reject_reason", reason))
	e.emitAudit(ctx, auditEventSessionInitiateFailed, false, userID, reason)

	switch {
	case errors.Is(err, ErrUserStoreUnavailable):
		e.metrics.Inc(MetricStoreUnavailable)
		span.SetStatus(codes.Error, "user store unavailable")
		span.RecordError(err)
		e.logger.WarnContext(ctx, "initiate failed: user store unavailable", "error", err)
	case errors.Is(err, ErrTokenIssueFailed):
		span.SetStatus(codes.Error, "token issue failed")
		span.RecordError(err)
		e.logger.ErrorContext(ctx, "initiate failed: token issue", "user_id", userID, "error", err)
	default:
		e.metrics.Inc(MetricInitiateFailure)
		e.logger.DebugContext(ctx, "initiate rejected", "reason", reason)
	}
}

// Verify authenticates a request from its Authorization header value.
//
// An empty header or one not of the exact form "Bearer <token>" yields
// ErrUnauthorized. Every other rejection yields ErrAuthTokenInvalid. Store
// failures yield an error wrapping ErrUserStoreUnavailable.
func (e *Engine) Verify(ctx context.Context, authorizationHeader string) (*SessionResult, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.tracer.Start(ctx, "goSession.Verify", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	start := time.Now()
	res, err := flows.RunVerify(ctx, e.flows.Verify, authorizationHeader)
	e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	e.metrics.Inc(verifyMetric(res.Reason))

	if err != nil {
		span.SetAttributes(attribute.String("session.reject_reason", res.Reason))
		e.emitAudit(ctx, auditEventSessionRejected, false, res.Subject, res.Reason)
		if errors.Is(err, ErrUserStoreUnavailable) {
			span.SetStatus(codes.Error, "user store unavailable")
			span.RecordError(err)
			e.logger.WarnContext(ctx, "verify failed: user store unavailable", "error", err)
		} else {
			e.logger.DebugContext(ctx, "verify rejected", "reason", res.Reason)
		}
		return nil, err
	}

	e.emitAudit(ctx, auditEventSessionVerified, true, res.User.ID, "")
	span.SetAttributes(attribute.String("session.user_id", res.User.ID))

	return &SessionResult{
		User:    res.User,
		Token:   res.Token,
		Expires: res.Expires,
	}, nil
}

// Authenticate checks credentials without issuing a token.
func (e *Engine) Authenticate(ctx context.Context, identifier, secret string) (*UserRecord, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	res, err := flows.RunAuthenticate(ctx, e.flows.Authenticate, identifier, secret)
	if err != nil {
		return nil, err
	}
	return &res.User, nil
}

// ReadOnly returns the configured read-only flag. The engine does not act on it.
func (e *Engine) ReadOnly() bool {
	return e != nil && e.config.Session.ReadOnly
}

// SessionDuration returns the configured token lifetime.
func (e *Engine) SessionDuration() time.Duration {
	if e == nil {
		return 0
	}
	return e.config.Session.Duration
}

// SigningAlgorithm returns the JOSE alg every token is signed with.
func (e *Engine) SigningAlgorithm() string {
	if e == nil || e.codec == nil {
		return ""
	}
	return e.codec.Algorithm()
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close flushes pending audit events. The engine keeps working for Initiate
// and Verify after Close, but emits no further audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}
