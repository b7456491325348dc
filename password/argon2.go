package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Prefix = "$argon2id$"

	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minHashInput          = 8
)

var (
	// ErrInvalidHash reports a stored hash that cannot be parsed.
	ErrInvalidHash = errors.New("invalid password hash")
	// ErrPasswordTooShort reports a secret shorter than the hashing minimum.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong reports a secret longer than Config.MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password too long")
)

// Config holds argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MaxPasswordBytes caps the secret length accepted by Hash and Verify. Zero means no cap.
	MaxPasswordBytes int
}

// DefaultConfig returns the OWASP-recommended argon2id parameters.
func DefaultConfig() Config {
	return Config{
		Memory:           64 * 1024,
		Time:             1,
		Parallelism:      4,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: 1024,
	}
}

// Argon2 hashes and verifies argon2id PHC strings.
//
// Argon2 instances are immutable after construction and safe for concurrent use.
type Argon2 struct {
	config Config

	decoyOnce sync.Once
	decoy     string
}

type phcParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, fmt.Errorf("argon2 memory must be >= %d KiB", minMemoryKB)
	case cfg.Time < minTimeCost:
		return nil, errors.New("argon2 time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return nil, errors.New("argon2 parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, fmt.Errorf("argon2 salt length must be >= %d", minSaltLength)
	case cfg.KeyLength < minKeyLength:
		return nil, fmt.Errorf("argon2 key length must be >= %d", minKeyLength)
	case cfg.MaxPasswordBytes < 0:
		return nil, errors.New("max password bytes must be >= 0")
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a new PHC string for secret with a random salt.
func (a *Argon2) Hash(secret string) (string, error) {
	if len(secret) < minHashInput {
		return "", ErrPasswordTooShort
	}
	if a.config.MaxPasswordBytes > 0 && len(secret) > a.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	return a.encode(secret, salt), nil
}

func (a *Argon2) encode(secret string, salt []byte) string {
	key := argon2.IDKey([]byte(secret), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// Verify reports whether secret matches encodedHash.
// It returns (false, err) only when encodedHash is malformed.
func (a *Argon2) Verify(secret, encodedHash string) (bool, error) {
	p, err := parseArgon2(encodedHash)
	if err != nil {
		return false, err
	}
	if a.config.MaxPasswordBytes > 0 && len(secret) > a.config.MaxPasswordBytes {
		return false, nil
	}

	computed := argon2.IDKey([]byte(secret), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker parameters than the hasher's.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := parseArgon2(encodedHash)
	if err != nil {
		return false, err
	}
	return a.config.Memory > p.memory ||
		a.config.Time > p.time ||
		a.config.Parallelism > p.parallelism ||
		a.config.KeyLength != uint32(len(p.key)), nil
}

// DecoyHash returns a well-formed hash of a random secret, computed once.
// Verifying against it costs the same as verifying a real user's hash.
func (a *Argon2) DecoyHash() string {
	a.decoyOnce.Do(func() {
		secret := make([]byte, 24)
		salt := make([]byte, a.config.SaltLength)
		_, _ = io.ReadFull(rand.Reader, secret)
		_, _ = io.ReadFull(rand.Reader, salt)
		a.decoy = a.encode(base64.RawStdEncoding.EncodeToString(secret), salt)
	})
	return a.decoy
}

func parseArgon2(encodedHash string) (*phcParams, error) {
	if !strings.HasPrefix(encodedHash, argon2Prefix) {
		return nil, fmt.Errorf("%w: unsupported algorithm", ErrInvalidHash)
	}
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, fmt.Errorf("%w: wrong segment count", ErrInvalidHash)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("%w: version", ErrInvalidHash)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version %d", ErrInvalidHash, version)
	}

	var memory, timeCost, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return nil, fmt.Errorf("%w: parameters", ErrInvalidHash)
	}
	if memory < minMemoryKB || timeCost < minTimeCost || threads < uint32(minParallelism) || threads > 255 {
		return nil, fmt.Errorf("%w: parameters out of range", ErrInvalidHash)
	}

	salt, err := decodeSegment(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: salt", ErrInvalidHash)
	}
	key, err := decodeSegment(parts[5])
	if err != nil || len(key) < int(minKeyLength) || len(key) > 1024 {
		return nil, fmt.Errorf("%w: key", ErrInvalidHash)
	}

	return &phcParams{
		memory:      memory,
		time:        timeCost,
		parallelism: uint8(threads),
		salt:        salt,
		key:         key,
	}, nil
}

// decodeSegment accepts both unpadded (PHC canonical) and padded base64.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
