package password

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt verifies $2a$/$2b$/$2y$ hashes.
type Bcrypt struct {
	cost int

	decoyOnce sync.Once
	decoy     string
}

// NewBcrypt returns a bcrypt comparer. Cost zero selects bcrypt.DefaultCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be in [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Hash returns a bcrypt hash of secret.
func (b *Bcrypt) Hash(secret string) (string, error) {
	if len(secret) < minHashInput {
		return "", ErrPasswordTooShort
	}
	// bcrypt silently truncates beyond 72 bytes.
	if len(secret) > 72 {
		return "", ErrPasswordTooLong
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether secret matches encodedHash.
func (b *Bcrypt) Verify(secret, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
}

// DecoyHash returns a bcrypt hash of a random secret at the comparer's cost.
func (b *Bcrypt) DecoyHash() string {
	b.decoyOnce.Do(func() {
		raw := make([]byte, 24)
		_, _ = io.ReadFull(rand.Reader, raw)
		out, err := bcrypt.GenerateFromPassword([]byte(base64.RawStdEncoding.EncodeToString(raw)), b.cost)
		if err == nil {
			b.decoy = string(out)
		}
	})
	return b.decoy
}
