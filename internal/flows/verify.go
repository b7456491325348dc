package flows

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/MrEthical07/goSession/jwt"
)

// ReasonNoBearer labels a request without a usable Authorization header.
const ReasonNoBearer = "no_bearer"

var bearerPattern = regexp.MustCompile(`^Bearer (\S+)$`)

// ExtractBearer returns the token from an Authorization header of the exact
// form "Bearer <token>". The scheme is case-sensitive and no extra whitespace
// is tolerated.
func ExtractBearer(header string) (string, bool) {
	m := bearerPattern.FindStringSubmatch(header)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// VerifyDeps captures token verification dependencies.
type VerifyDeps[U any] struct {
	FindNestedByID func(ctx context.Context, userID string) (U, bool, error)
	Parse          func(string) (jwt.SessionClaims, error)
	// ClassifyToken maps a Parse failure to the public error and an internal reason.
	ClassifyToken func(error) (error, string)
	// ClassifySubjectGone returns the public error and reason for a token whose user no longer exists.
	ClassifySubjectGone func() (error, string)
	Errors              Errors
}

// VerifyResult is the outcome of RunVerify.
type VerifyResult[U any] struct {
	User    U
	Subject string
	Token   string
	Expires time.Time
	Reason  string
}

// RunVerify authenticates a request from its Authorization header.
//
// Stages run in order: header, token, user lookup. Nothing after a failed
// stage is consulted.
func RunVerify[U any](ctx context.Context, deps VerifyDeps[U], header string) (VerifyResult[U], error) {
	var res VerifyResult[U]

	token, ok := ExtractBearer(header)
	if !ok {
		res.Reason = ReasonNoBearer
		return res, deps.Errors.Unauthorized
	}

	claims, err := deps.Parse(token)
	if err != nil {
		pub, reason := deps.ClassifyToken(err)
		res.Reason = reason
		return res, pub
	}
	res.Subject = claims.Subject

	user, found, err := deps.FindNestedByID(ctx, claims.Subject)
	if err != nil {
		res.Reason = ReasonStoreUnavailable
		return res, fmt.Errorf("%w: %w", deps.Errors.StoreUnavailable, err)
	}
	if !found {
		pub, reason := deps.ClassifySubjectGone()
		res.Reason = reason
		return res, pub
	}

	res.User = user
	res.Token = token
	res.Expires = claims.ExpiresAt
	return res, nil
}
