package password

import (
	"fmt"
	"strings"
)

// Decoy algorithms for [Auto.DecoyHash].
const (
	DecoyArgon2ID = "argon2id"
	DecoyBcrypt   = "bcrypt"
)

// Auto verifies against whichever algorithm produced the stored hash.
// New hashes are always argon2id.
type Auto struct {
	argon       *Argon2
	bcrypt      *Bcrypt
	bcryptDecoy bool
}

// AutoOption configures an [Auto].
type AutoOption func(*Auto) error

// WithDecoyAlgorithm selects the algorithm of the decoy hash. Pick the one
// most stored hashes use so unknown identifiers cost the same as known ones.
// Empty selects argon2id.
func WithDecoyAlgorithm(algorithm string) AutoOption {
	return func(a *Auto) error {
		switch algorithm {
		case "", DecoyArgon2ID:
			a.bcryptDecoy = false
		case DecoyBcrypt:
			if a.bcrypt == nil {
				return fmt.Errorf("bcrypt decoy requires a bcrypt comparer")
			}
			a.bcryptDecoy = true
		default:
			return fmt.Errorf("unknown decoy algorithm %q", algorithm)
		}
		return nil
	}
}

// NewAuto builds an Auto comparer. A nil bcrypt comparer disables bcrypt hashes.
func NewAuto(argon *Argon2, bc *Bcrypt, opts ...AutoOption) (*Auto, error) {
	if argon == nil {
		return nil, fmt.Errorf("argon2 hasher is required")
	}
	a := &Auto{argon: argon, bcrypt: bc}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Hash delegates to the argon2id hasher.
func (a *Auto) Hash(secret string) (string, error) {
	return a.argon.Hash(secret)
}

// Verify dispatches on the hash prefix.
func (a *Auto) Verify(secret, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, argon2Prefix):
		return a.argon.Verify(secret, encodedHash)
	case isBcrypt(encodedHash):
		if a.bcrypt == nil {
			return false, fmt.Errorf("%w: bcrypt hashes not enabled", ErrInvalidHash)
		}
		return a.bcrypt.Verify(secret, encodedHash)
	default:
		return false, fmt.Errorf("%w: unrecognized hash format", ErrInvalidHash)
	}
}

// DecoyHash returns the decoy of the selected algorithm. The default is
// argon2id, matching the cost of new hashes.
func (a *Auto) DecoyHash() string {
	if a.bcryptDecoy {
		return a.bcrypt.DecoyHash()
	}
	return a.argon.DecoyHash()
}

// NeedsUpgrade reports true for every non-argon2id hash.
func (a *Auto) NeedsUpgrade(encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		return true, nil
	}
	return a.argon.NeedsUpgrade(encodedHash)
}

func isBcrypt(h string) bool {
	return strings.HasPrefix(h, "$2a$") || strings.HasPrefix(h, "$2b$") || strings.HasPrefix(h, "$2y$")
}
