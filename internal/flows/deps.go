package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/jwt"
)

// Credential is the flow-local credential-bearing user projection.
type Credential struct {
	UserID       string
	PasswordHash string
}

// Lookups are the two named user store queries.
type Lookups[U any] struct {
	FindByCredentialIdentifier func(ctx context.Context, identifier string) (Credential, bool, error)
	FindNestedByID             func(ctx context.Context, userID string) (U, bool, error)
}

// Errors carries the host's sentinel errors.
type Errors struct {
	InvalidCredentials error
	Unauthorized       error
	StoreUnavailable   error
	TokenIssueFailed   error
}

// Deps groups every flow's dependencies. The Engine builds it once at Build.
type Deps[U any] struct {
	Authenticate AuthenticateDeps[U]
	Initiate     InitiateDeps[U]
	Verify       VerifyDeps[U]
}

// NewDeps wires the per-flow dependency sets from shared pieces.
func NewDeps[U any](
	lookups Lookups[U],
	compare func(secret, hash string) (bool, error),
	decoyHash string,
	codec *jwt.Codec,
	duration time.Duration,
	now func() time.Time,
	classifyToken func(error) (error, string),
	classifySubjectGone func() (error, string),
	errs Errors,
) Deps[U] {
	auth := AuthenticateDeps[U]{
		Lookups:   lookups,
		Compare:   compare,
		DecoyHash: decoyHash,
		Errors:    errs,
	}
	return Deps[U]{
		Authenticate: auth,
		Initiate: InitiateDeps[U]{
			Authenticate: auth,
			Duration:     duration,
			Now:          now,
			Sign:         codec.Sign,
			Errors:       errs,
		},
		Verify: VerifyDeps[U]{
			FindNestedByID:      lookups.FindNestedByID,
			Parse:               codec.Parse,
			ClassifyToken:       classifyToken,
			ClassifySubjectGone: classifySubjectGone,
			Errors:              errs,
		},
	}
}
