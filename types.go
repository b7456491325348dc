package goSession

import (
	"context"
	"time"
)

// UserRecord is the full user record returned to callers after a successful
// Initiate or Verify. It is owned by the user store and only read here.
type UserRecord struct {
	ID          string            `json:"id"`
	Username    string            `json:"username"`
	Email       string            `json:"email"`
	DisplayName string            `json:"displayName,omitempty"`
	Roles       []string          `json:"roles,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// CredentialRecord is the credential-bearing projection of a user, loaded
// only for password comparison. It is never returned to callers.
type CredentialRecord struct {
	UserID       string
	PasswordHash string
}

// SessionResult is returned by both Initiate and Verify.
type SessionResult struct {
	User    UserRecord `json:"user"`
	Token   string     `json:"token"`
	Expires time.Time  `json:"expires"`
}

// UserResolver looks up users in the backing store.
//
// Absence is reported by found == false with a nil error. A non-nil error
// means the store could not answer and is surfaced as ErrUserStoreUnavailable.
// Implementations must be safe for concurrent use.
type UserResolver interface {
	// FindByCredentialIdentifier matches identifier against both username and email.
	FindByCredentialIdentifier(ctx context.Context, identifier string) (CredentialRecord, bool, error)
	// FindNestedByID loads the full record for a user id.
	FindNestedByID(ctx context.Context, userID string) (UserRecord, bool, error)
}

// SecureCompare compares a plaintext secret against a stored hash in constant time.
//
// A malformed hash is reported as an error, a mismatch as (false, nil).
type SecureCompare interface {
	Verify(secret, encodedHash string) (bool, error)
}

// SecureCompareFunc adapts a function to SecureCompare.
type SecureCompareFunc func(secret, encodedHash string) (bool, error)

// Verify calls f.
func (f SecureCompareFunc) Verify(secret, encodedHash string) (bool, error) {
	return f(secret, encodedHash)
}

// DecoyHasher is implemented by comparers that can supply a well-formed hash
// of a random secret. Initiate compares against it when the identifier is
// unknown so both failure paths cost the same.
type DecoyHasher interface {
	DecoyHash() string
}
