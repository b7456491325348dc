package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds throttle tuning parameters.
type Config struct {
	// MaxAttempts is the number of failures allowed per window.
	MaxAttempts int
	Window      time.Duration
	// PerIP also counts failures per client address.
	PerIP  bool
	Prefix string
}

// Limiter counts failed logins per identifier and, optionally, per address.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) (*Limiter, error) {
	if redisClient == nil {
		return nil, errors.New("throttle requires a redis client")
	}
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("throttle max attempts must be >= 1")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("throttle window must be > 0")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "gs"
	}
	return &Limiter{redis: redisClient, config: cfg}, nil
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.config.Window }

// Check returns [ErrRateLimited] when identifier or ip has used up its budget.
func (l *Limiter) Check(ctx context.Context, identifier, ip string) error {
	for _, key := range l.keys(identifier, ip) {
		if err := l.checkCounter(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Fail records a failed attempt. It returns [ErrRateLimited] once a counter
// passes the budget.
func (l *Limiter) Fail(ctx context.Context, identifier, ip string) error {
	limited := false
	for _, key := range l.keys(identifier, ip) {
		count, err := l.incrementWithTTL(ctx, key)
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxAttempts) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the identifier counter after a successful login.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	if err := l.redis.Del(ctx, l.identifierKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current failure count for identifier.
func (l *Limiter) Attempts(ctx context.Context, identifier string) (int, error) {
	count, err := l.redis.Get(ctx, l.identifierKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) keys(identifier, ip string) []string {
	keys := []string{l.identifierKey(identifier)}
	if l.config.PerIP && ip != "" {
		keys = append(keys, l.config.Prefix+":throttle:ip:"+ip)
	}
	return keys
}

func (l *Limiter) identifierKey(identifier string) string {
	return l.config.Prefix + ":throttle:id:" + strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set only by the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
