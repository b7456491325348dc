package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/jwt"
)

// InitiateDeps captures login dependencies.
type InitiateDeps[U any] struct {
	Authenticate AuthenticateDeps[U]
	Duration     time.Duration
	Now          func() time.Time
	Sign         func(jwt.SessionClaims) (string, error)
	Errors       Errors
}

// InitiateResult is the outcome of RunInitiate.
type InitiateResult[U any] struct {
	User    U
	UserID  string
	Token   string
	Expires time.Time
	Reason  string
}

// RunInitiate authenticates the caller and issues a token for the user.
//
// Issue and expiry times are truncated to whole seconds so Expires equals
// the exp claim a later verification reads back.
func RunInitiate[U any](ctx context.Context, deps InitiateDeps[U], identifier, secret string) (InitiateResult[U], error) {
	var res InitiateResult[U]

	auth, err := RunAuthenticate(ctx, deps.Authenticate, identifier, secret)
	if err != nil {
		res.Reason = auth.Reason
		return res, err
	}

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	issuedAt := now().Truncate(time.Second)
	expiresAt := issuedAt.Add(deps.Duration).Truncate(time.Second)

	token, err := deps.Sign(jwt.SessionClaims{
		Subject:   auth.UserID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		res.UserID = auth.UserID
		res.Reason = "sign_failed"
		return res, fmt.Errorf("%w: %w", deps.Errors.TokenIssueFailed, err)
	}

	res.User = auth.User
	res.UserID = auth.UserID
	res.Token = token
	res.Expires = expiresAt
	return res, nil
}
