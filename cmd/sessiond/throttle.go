package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/middleware"
)

// throttledSessions refuses logins for identifiers or addresses that failed
// too often. Counter errors are logged and the login proceeds.
type throttledSessions struct {
	middleware.Sessions
	limiter *rate.Limiter
	logger  *slog.Logger
}

func (t throttledSessions) Initiate(ctx context.Context, identifier, secret string) (*goSession.SessionResult, error) {
	ip := goSession.ClientIP(ctx)
	if err := t.limiter.Check(ctx, identifier, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return nil, err
		}
		t.logger.WarnContext(ctx, "login throttle check failed", "error", err)
	}

	res, err := t.Sessions.Initiate(ctx, identifier, secret)
	switch {
	case err == nil:
		if rerr := t.limiter.Reset(ctx, identifier); rerr != nil {
			t.logger.WarnContext(ctx, "login throttle reset failed", "error", rerr)
		}
	case errors.Is(err, goSession.ErrInvalidCredentials):
		if ferr := t.limiter.Fail(ctx, identifier, ip); ferr != nil && !errors.Is(ferr, rate.ErrRateLimited) {
			t.logger.WarnContext(ctx, "login throttle update failed", "error", ferr)
		}
	}
	return res, err
}
