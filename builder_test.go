package goSession

import (
	"context"
	"strings"
	"testing"
	"time"
)

type nopResolver struct{}

func (nopResolver) FindByCredentialIdentifier(context.Context, string) (CredentialRecord, bool, error) {
	return CredentialRecord{}, false, nil
}

func (nopResolver) FindNestedByID(context.Context, string) (UserRecord, bool, error) {
	return UserRecord{}, false, nil
}

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	return cfg
}

func TestBuildRequiresResolver(t *testing.T) {
	if _, err := New().WithConfig(validConfig()).Build(); err == nil || !strings.Contains(err.Error(), "resolver") {
		t.Fatalf("expected resolver error, got %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(validConfig()).WithUserResolver(nopResolver{})
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildDefaultCompareHasDecoy(t *testing.T) {
	e, err := New().WithConfig(validConfig()).WithUserResolver(nopResolver{}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.HasPrefix(e.flows.Authenticate.DecoyHash, "$argon2id$") {
		t.Fatalf("expected an argon2id decoy hash, got %q", e.flows.Authenticate.DecoyHash)
	}
}

func TestBuildBcryptDecoy(t *testing.T) {
	cfg := validConfig()
	cfg.Password.BcryptCost = 4
	cfg.Password.DecoyAlgorithm = "bcrypt"
	e, err := New().WithConfig(cfg).WithUserResolver(nopResolver{}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()
	if !strings.HasPrefix(e.flows.Authenticate.DecoyHash, "$2a$04$") {
		t.Fatalf("expected a bcrypt decoy hash, got %q", e.flows.Authenticate.DecoyHash)
	}
}

func TestBuildClonesSecret(t *testing.T) {
	cfg := validConfig()
	b := New().WithConfig(cfg).WithUserResolver(nopResolver{})
	cfg.Session.Secret[0] = 'X'
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if e.config.Session.Secret[0] != '0' {
		t.Fatal("engine config must not alias the caller's secret")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"short secret":   func(c *Config) { c.Session.Secret = []byte("short") },
		"zero duration":  func(c *Config) { c.Session.Duration = 0 },
		"sub-second":     func(c *Config) { c.Session.Duration = 500 * time.Millisecond },
		"fractional":     func(c *Config) { c.Session.Duration = 1500 * time.Millisecond },
		"bcrypt decoy":   func(c *Config) { c.Password.AllowBcrypt = false; c.Password.DecoyAlgorithm = "bcrypt" },
		"unknown decoy":  func(c *Config) { c.Password.DecoyAlgorithm = "scrypt" },
		"unknown method": func(c *Config) { c.Session.SigningMethod = "rs256" },
		"future iat":     func(c *Config) { c.Session.MaxFutureIssuedAt = 48 * time.Hour },
		"audit buffer":   func(c *Config) { c.Audit = AuditConfig{Enabled: true} },
		"latency only":   func(c *Config) { c.Metrics = MetricsConfig{EnableLatencyHistograms: true} },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
