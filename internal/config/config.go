// Package config loads sessiond settings.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML file, SESSIOND_* environment variables, then command-line flags that
// were explicitly set. Environment keys map by lowercasing and turning the
// first underscore after each section into a dot, e.g.
// SESSIOND_SESSION_SECRET sets session.secret.
package config

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/goSession"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SESSIOND_"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config is the full sessiond configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Session  SessionConfig  `koanf:"session"`
	Password PasswordConfig `koanf:"password"`
	Store    StoreConfig    `koanf:"store"`
	Audit    AuditConfig    `koanf:"audit"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Throttle ThrottleConfig `koanf:"throttle"`
}

type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

type SessionConfig struct {
	// Secret is the raw signing key, or "base64:" followed by its encoding.
	Secret        string        `koanf:"secret"`
	Duration      time.Duration `koanf:"duration"`
	ReadOnly      bool          `koanf:"readonly"`
	SigningMethod string        `koanf:"signing_method"`
}

type PasswordConfig struct {
	Memory      uint32 `koanf:"memory"`
	Time        uint32 `koanf:"time"`
	Parallelism uint8  `koanf:"parallelism"`
	AllowBcrypt bool   `koanf:"allow_bcrypt"`
	BcryptCost  int    `koanf:"bcrypt_cost"`
	// DecoyAlgorithm is "argon2id" or "bcrypt".
	DecoyAlgorithm string `koanf:"decoy_algorithm"`
}

// ThrottleConfig limits failed logins per identifier using the Redis at
// store.redis_addr, whatever the store driver.
type ThrottleConfig struct {
	Enabled     bool          `koanf:"enabled"`
	MaxAttempts int           `koanf:"max_attempts"`
	Window      time.Duration `koanf:"window"`
	PerIP       bool          `koanf:"per_ip"`
}

type StoreConfig struct {
	Driver          string        `koanf:"driver"`
	RedisAddr       string        `koanf:"redis_addr"`
	RedisPassword   string        `koanf:"redis_password"`
	RedisDB         int           `koanf:"redis_db"`
	RedisPrefix     string        `koanf:"redis_prefix"`
	PostgresDSN     string        `koanf:"postgres_dsn"`
	ConnectAttempts uint64        `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
}

type AuditConfig struct {
	// Sink is "none", "log" or "json" (newline-delimited JSON on stdout).
	Sink       string `koanf:"sink"`
	BufferSize int    `koanf:"buffer_size"`
	DropIfFull bool   `koanf:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Latency bool   `koanf:"latency"`
	Path    string `koanf:"path"`
}

// Defaults returns the settings used when no source overrides them.
func Defaults() Config {
	engine := goSession.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Log: LogConfig{Format: "json", Level: "info"},
		Session: SessionConfig{
			Duration:      engine.Session.Duration,
			SigningMethod: engine.Session.SigningMethod,
		},
		Password: PasswordConfig{
			Memory:      engine.Password.Memory,
			Time:        engine.Password.Time,
			Parallelism: engine.Password.Parallelism,
			AllowBcrypt: engine.Password.AllowBcrypt,
		},
		Store: StoreConfig{
			Driver:          DriverMemory,
			RedisAddr:       "127.0.0.1:6379",
			RedisPrefix:     "gs",
			ConnectAttempts: 5,
			ConnectBackoff:  500 * time.Millisecond,
		},
		Audit: AuditConfig{
			Sink:       "log",
			BufferSize: engine.Audit.BufferSize,
			DropIfFull: engine.Audit.DropIfFull,
		},
		Metrics:  MetricsConfig{Enabled: true, Latency: true, Path: "/metrics"},
		Throttle: ThrottleConfig{MaxAttempts: 5, Window: 15 * time.Minute, PerIP: true},
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":           "server.addr",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"store":          "store.driver",
	"redis-addr":     "store.redis_addr",
	"postgres-dsn":   "store.postgres_dsn",
	"session-ttl":    "session.duration",
	"readonly":       "session.readonly",
	"audit-sink":     "audit.sink",
	"metrics":        "metrics.enabled",
	"signing-method": "session.signing_method",
	"throttle":       "throttle.enabled",
}

// RegisterFlags adds the overridable flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("addr", d.Server.Addr, "listen address")
	fs.String("log-format", d.Log.Format, "log format: json or text")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	fs.String("store", d.Store.Driver, "user store: memory, redis or postgres")
	fs.String("redis-addr", d.Store.RedisAddr, "redis address")
	fs.String("postgres-dsn", "", "postgres connection string")
	fs.Duration("session-ttl", d.Session.Duration, "session token lifetime")
	fs.Bool("readonly", false, "advertise read-only sessions")
	fs.String("audit-sink", d.Audit.Sink, "audit sink: none, log or json")
	fs.Bool("metrics", d.Metrics.Enabled, "expose engine metrics")
	fs.String("signing-method", d.Session.SigningMethod, "hs256, hs384 or hs512")
	fs.Bool("throttle", false, "throttle failed logins in redis")
}

// Load layers defaults, the file at path (if non-empty), the environment and
// the changed flags in fs (if non-nil).
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	// Keys absent from every source keep their default.
	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "unmarshal").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps SESSIOND_STORE_REDIS_ADDR to store.redis_addr: the first
// segment is the section, the rest is the field name.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + field
}

// Validate checks the settings sessiond interprets itself. Engine settings
// are validated when the engine is built.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverRedis:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return oops.Code("CONFIG_INVALID").With("field", "store.postgres_dsn").
				Errorf("postgres store requires a dsn")
		}
	default:
		return oops.Code("CONFIG_INVALID").With("field", "store.driver").
			Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Audit.Sink {
	case "none", "log", "json":
	default:
		return oops.Code("CONFIG_INVALID").With("field", "audit.sink").
			Errorf("unknown audit sink %q", c.Audit.Sink)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").With("field", "log.format").
			Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Throttle.Enabled && (c.Throttle.MaxAttempts < 1 || c.Throttle.Window <= 0) {
		return oops.Code("CONFIG_INVALID").With("field", "throttle").
			Errorf("throttle needs max_attempts >= 1 and a positive window")
	}
	if c.Store.ConnectAttempts == 0 {
		return oops.Code("CONFIG_INVALID").With("field", "store.connect_attempts").
			Errorf("connect attempts must be >= 1")
	}
	return nil
}

// SecretBytes decodes Session.Secret.
func (c Config) SecretBytes() ([]byte, error) {
	if enc, ok := strings.CutPrefix(c.Session.Secret, "base64:"); ok {
		b, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("field", "session.secret").Wrap(err)
		}
		return b, nil
	}
	return []byte(c.Session.Secret), nil
}

// Engine converts the settings into an engine configuration.
func (c Config) Engine() (goSession.Config, error) {
	secret, err := c.SecretBytes()
	if err != nil {
		return goSession.Config{}, err
	}

	out := goSession.DefaultConfig()
	out.Session.Secret = secret
	out.Session.Duration = c.Session.Duration
	out.Session.ReadOnly = c.Session.ReadOnly
	out.Session.SigningMethod = c.Session.SigningMethod
	out.Password.Memory = c.Password.Memory
	out.Password.Time = c.Password.Time
	out.Password.Parallelism = c.Password.Parallelism
	out.Password.AllowBcrypt = c.Password.AllowBcrypt
	out.Password.BcryptCost = c.Password.BcryptCost
	out.Password.DecoyAlgorithm = c.Password.DecoyAlgorithm
	out.Audit.Enabled = c.Audit.Sink != "none"
	out.Audit.BufferSize = c.Audit.BufferSize
	out.Audit.DropIfFull = c.Audit.DropIfFull
	out.Metrics.Enabled = c.Metrics.Enabled
	out.Metrics.EnableLatencyHistograms = c.Metrics.Enabled && c.Metrics.Latency

	if err := out.Validate(); err != nil {
		return goSession.Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return out, nil
}
