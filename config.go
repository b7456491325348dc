package goSession

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
)

// Config is the complete engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
// Builder.Build clones the value, so later changes to the caller's copy have no effect.
type Config struct {
	Session  SessionConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// SessionConfig holds the token settings.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable.
type SessionConfig struct {
	// Secret is the HMAC signing key. At least 32 bytes.
	Secret []byte
	// Duration is the token lifetime. Tokens carry whole seconds, so it must be
	// a whole number of seconds and at least one.
	Duration time.Duration
	// ReadOnly is passed through to collaborators via Engine.ReadOnly. The engine does not interpret it.
	ReadOnly bool
	// SigningMethod is one of "hs256", "hs384", "hs512". Empty selects hs256.
	SigningMethod string
	// MaxFutureIssuedAt bounds how far ahead of the local clock a token's iat may be.
	MaxFutureIssuedAt time.Duration
}

// PasswordConfig configures the default SecureCompare built when none is supplied.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	// AllowBcrypt accepts legacy bcrypt hashes alongside argon2id.
	AllowBcrypt bool
	BcryptCost  int
	// DecoyAlgorithm is "argon2id" (default) or "bcrypt". Set it to the
	// algorithm most stored hashes use; "bcrypt" requires AllowBcrypt.
	DecoyAlgorithm string
}

// AuditConfig controls the asynchronous audit dispatcher.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. Session.Secret is left empty and
// must be set before Build.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Duration:          24 * time.Hour,
			SigningMethod:     string(jwt.MethodHS256),
			MaxFutureIssuedAt: 10 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:           64 * 1024,
			Time:             1,
			Parallelism:      4,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			AllowBcrypt:      true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.Secret = cloneBytes(cfg.Session.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if len(c.Session.Secret) < jwt.MinSecretBytes {
		return fmt.Errorf("Session Secret must be at least %d bytes", jwt.MinSecretBytes)
	}
	if c.Session.Duration < time.Second {
		return errors.New("Session Duration must be >= 1s")
	}
	if c.Session.Duration%time.Second != 0 {
		return errors.New("Session Duration must be a whole number of seconds")
	}
	switch jwt.SigningMethod(c.Session.SigningMethod) {
	case "", jwt.MethodHS256, jwt.MethodHS384, jwt.MethodHS512:
	default:
		return fmt.Errorf("Session SigningMethod %q is not supported", c.Session.SigningMethod)
	}
	if c.Session.MaxFutureIssuedAt < 0 || c.Session.MaxFutureIssuedAt > 24*time.Hour {
		return errors.New("Session MaxFutureIssuedAt must be within [0, 24h]")
	}

	switch c.Password.DecoyAlgorithm {
	case "", password.DecoyArgon2ID:
	case password.DecoyBcrypt:
		if !c.Password.AllowBcrypt {
			return errors.New("Password DecoyAlgorithm bcrypt requires AllowBcrypt")
		}
	default:
		return fmt.Errorf("Password DecoyAlgorithm %q is not supported", c.Password.DecoyAlgorithm)
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	return nil
}
