package main

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/config"
	"github.com/MrEthical07/goSession/store/memory"
	"github.com/MrEthical07/goSession/store/postgres"
	redisstore "github.com/MrEthical07/goSession/store/redis"
)

// userStore is what sessiond needs from a store beyond resolving users.
type userStore interface {
	goSession.UserResolver
	Put(ctx context.Context, user goSession.UserRecord, passwordHash string) (goSession.UserRecord, error)
	Ping(ctx context.Context) error
}

type memoryStore struct {
	*memory.Store
}

func (m memoryStore) Put(_ context.Context, user goSession.UserRecord, passwordHash string) (goSession.UserRecord, error) {
	return m.Store.Put(user, passwordHash)
}

func (memoryStore) Ping(context.Context) error { return nil }

const defaultConnectBackoff = 100 * time.Millisecond

// openStore connects the configured store, retrying with exponential
// backoff. The returned func releases it.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (userStore, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memoryStore{memory.New()}, func() {}, nil

	case config.DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s := redisstore.New(client, cfg.RedisPrefix)
		if err := connectWithRetry(ctx, cfg, logger, s.Ping); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return s, func() { _ = client.Close() }, nil

	case config.DriverPostgres:
		var s *postgres.Store
		err := connectWithRetry(ctx, cfg, logger, func(ctx context.Context) error {
			var err error
			s, err = postgres.Connect(ctx, cfg.PostgresDSN)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, oops.Code("CONFIG_INVALID").With("field", "store.driver").Errorf("unknown store driver %q", cfg.Driver)
}

func connectWithRetry(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger, connect func(context.Context) error) error {
	base := cfg.ConnectBackoff
	if base <= 0 {
		base = defaultConnectBackoff
	}
	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(base))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := connect(ctx); err != nil {
			logger.Warn("store connect failed", "store", cfg.Driver, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		// The cause is flattened into the message: oops reports the innermost
		// code, and callers match on STORE_CONNECT_FAILED.
		return oops.Code("STORE_CONNECT_FAILED").
			With("store", cfg.Driver).
			With("attempts", attempt).
			Errorf("connect %s store: %v", cfg.Driver, err)
	}
	return nil
}
