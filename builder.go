package goSession

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/MrEthical07/goSession"

// Builder assembles an Engine. A Builder can be used for one Build only.
type Builder struct {
	config Config

	resolver  UserResolver
	compare   SecureCompare
	decoyHash string
	auditSink AuditSink
	logger    *slog.Logger
	tracer    trace.TracerProvider
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. cfg is cloned.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithUserResolver sets the user store. Required.
func (b *Builder) WithUserResolver(r UserResolver) *Builder {
	b.resolver = r
	return b
}

// WithSecureCompare overrides the password comparer built from Config.Password.
func (b *Builder) WithSecureCompare(c SecureCompare) *Builder {
	b.compare = c
	return b
}

// WithDecoyHash sets the hash compared against when an identifier is unknown.
// When unset, the comparer's DecoyHash is used if it implements DecoyHasher.
func (b *Builder) WithDecoyHash(hash string) *Builder {
	b.decoyHash = hash
	return b
}

// WithAuditSink sets the audit destination. Audit must also be enabled in Config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine's logger. Nil discards logs.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTracerProvider enables OpenTelemetry spans around Initiate and Verify.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracer = tp
	return b
}

// WithClock overrides time.Now for token issuance and expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.resolver == nil {
		return nil, errors.New("user resolver required")
	}

	compare := b.compare
	if compare == nil {
		h, err := NewPasswordHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
		compare = h
	}

	decoy := b.decoyHash
	if decoy == "" {
		if dh, ok := compare.(DecoyHasher); ok {
			decoy = dh.DecoyHash()
		}
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	codec, err := jwt.NewCodec(jwt.Config{
		Secret:        cfg.Session.Secret,
		SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
		MaxFutureIAT:  cfg.Session.MaxFutureIssuedAt,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tp := b.tracer
	if tp == nil {
		tp = noop.NewTracerProvider()
	}

	engine := &Engine{
		config:  cfg,
		codec:   codec,
		metrics: NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		logger: logger.With("component", "goSession"),
		tracer: tp.Tracer(tracerName),
		now:    now,
	}
	engine.flows = flows.NewDeps(
		resolverLookups(b.resolver),
		compare.Verify,
		decoy,
		codec,
		cfg.Session.Duration,
		now,
		ClassifyTokenError,
		classifySubjectGone,
		flows.Errors{
			InvalidCredentials: ErrInvalidCredentials,
			Unauthorized:       ErrUnauthorized,
			StoreUnavailable:   ErrUserStoreUnavailable,
			TokenIssueFailed:   ErrTokenIssueFailed,
		},
	)

	b.built = true
	return engine, nil
}

// NewPasswordHasher returns the hasher Build uses when no SecureCompare is
// supplied. It hashes with argon2id and, when AllowBcrypt is set, also
// verifies bcrypt hashes.
func NewPasswordHasher(cfg PasswordConfig) (*password.Auto, error) {
	argon, err := password.NewArgon2(password.Config{
		Memory:           cfg.Memory,
		Time:             cfg.Time,
		Parallelism:      cfg.Parallelism,
		SaltLength:       cfg.SaltLength,
		KeyLength:        cfg.KeyLength,
		MaxPasswordBytes: cfg.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	var bc *password.Bcrypt
	if cfg.AllowBcrypt {
		if bc, err = password.NewBcrypt(cfg.BcryptCost); err != nil {
			return nil, err
		}
	}
	return password.NewAuto(argon, bc, password.WithDecoyAlgorithm(cfg.DecoyAlgorithm))
}

func resolverLookups(r UserResolver) flows.Lookups[UserRecord] {
	return flows.Lookups[UserRecord]{
		FindByCredentialIdentifier: func(ctx context.Context, identifier string) (flows.Credential, bool, error) {
			rec, found, err := r.FindByCredentialIdentifier(ctx, identifier)
			return flows.Credential{UserID: rec.UserID, PasswordHash: rec.PasswordHash}, found, err
		},
		FindNestedByID: r.FindNestedByID,
	}
}
