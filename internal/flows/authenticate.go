package flows

import (
	"context"
	"fmt"
)

// Authenticate failure reasons. They are for metrics and audit only and are
// never returned to callers.
const (
	ReasonUnknownIdentifier = "unknown_identifier"
	ReasonEmptySecret       = "empty_secret"
	ReasonPasswordMismatch  = "password_mismatch"
	ReasonHashInvalid       = "hash_invalid"
	ReasonUserGone          = "user_gone"
	ReasonStoreUnavailable  = "store_unavailable"
)

// AuthenticateDeps captures the credential check dependencies.
type AuthenticateDeps[U any] struct {
	Lookups Lookups[U]
	// Compare is the constant-time secret/hash comparison.
	Compare func(secret, hash string) (bool, error)
	// DecoyHash is compared against when no credential matched. Empty disables the decoy.
	DecoyHash string
	Errors    Errors
}

// AuthenticateResult is the outcome of RunAuthenticate.
type AuthenticateResult[U any] struct {
	User   U
	UserID string
	// Reason is empty on success.
	Reason string
}

// RunAuthenticate checks identifier and secret and loads the full user.
//
// Unknown identifiers, empty secrets, mismatches, unparsable stored hashes
// and a missing nested record all return Errors.InvalidCredentials. Store
// errors return Errors.StoreUnavailable wrapping the cause.
func RunAuthenticate[U any](ctx context.Context, deps AuthenticateDeps[U], identifier, secret string) (AuthenticateResult[U], error) {
	var res AuthenticateResult[U]

	cred, found, err := deps.Lookups.FindByCredentialIdentifier(ctx, identifier)
	if err != nil {
		res.Reason = ReasonStoreUnavailable
		return res, fmt.Errorf("%w: %w", deps.Errors.StoreUnavailable, err)
	}

	hash := cred.PasswordHash
	if !found {
		hash = deps.DecoyHash
	}

	// Compare runs on every path so timing does not separate an unknown
	// identifier from a wrong secret.
	match := false
	var cmpErr error
	if hash != "" {
		match, cmpErr = deps.Compare(secret, hash)
	}

	switch {
	case !found:
		res.Reason = ReasonUnknownIdentifier
		return res, deps.Errors.InvalidCredentials
	case secret == "":
		res.Reason = ReasonEmptySecret
		return res, deps.Errors.InvalidCredentials
	case cmpErr != nil:
		res.Reason = ReasonHashInvalid
		return res, deps.Errors.InvalidCredentials
	case !match:
		res.Reason = ReasonPasswordMismatch
		return res, deps.Errors.InvalidCredentials
	}

	user, found, err := deps.Lookups.FindNestedByID(ctx, cred.UserID)
	if err != nil {
		res.Reason = ReasonStoreUnavailable
		return res, fmt.Errorf("%w: %w", deps.Errors.StoreUnavailable, err)
	}
	if !found {
		res.Reason = ReasonUserGone
		return res, deps.Errors.InvalidCredentials
	}

	res.User = user
	res.UserID = cred.UserID
	return res, nil
}
