package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/MrEthical07/goSession"
)

// Verifier is the part of goSession.Engine the guard needs.
type Verifier interface {
	Verify(ctx context.Context, authorizationHeader string) (*goSession.SessionResult, error)
	ReadOnly() bool
}

// ReadOnlyHeader carries the session read-only flag on every guarded response.
const ReadOnlyHeader = "X-Session-Readonly"

type sessionContextKey struct{}

// SessionFromContext returns the session stored by Guard.
func SessionFromContext(ctx context.Context) (*goSession.SessionResult, bool) {
	res, ok := ctx.Value(sessionContextKey{}).(*goSession.SessionResult)
	return res, ok
}

// Guard rejects requests without a valid session and passes the rest to next
// with the session in the request context.
func Guard(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				WriteError(w, goSession.ErrEngineNotReady)
				return
			}
			w.Header().Set(ReadOnlyHeader, strconv.FormatBool(v.ReadOnly()))

			ctx := WithRequestMetadata(r)
			res, err := v.Verify(ctx, r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx = context.WithValue(ctx, sessionContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestMetadata copies the caller's address and User-Agent into the
// request context for audit events.
func WithRequestMetadata(r *http.Request) context.Context {
	ctx := r.Context()
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ctx = goSession.WithClientIP(ctx, host)
	} else if r.RemoteAddr != "" {
		ctx = goSession.WithClientIP(ctx, r.RemoteAddr)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = goSession.WithUserAgent(ctx, ua)
	}
	return ctx
}
