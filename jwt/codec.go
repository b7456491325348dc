package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the HMAC digest used by a [Codec].
//
// SigningMethod instances are intended to be configured during initialization and then treated as immutable.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256. It is the default.
	MethodHS256 SigningMethod = "hs256"
	// MethodHS384 signs with HMAC-SHA384.
	MethodHS384 SigningMethod = "hs384"
	// MethodHS512 signs with HMAC-SHA512.
	MethodHS512 SigningMethod = "hs512"
)

// MinSecretBytes is the shortest signing secret a [Codec] accepts.
const MinSecretBytes = 32

var (
	// ErrMalformed reports a token that is not a structurally valid session token.
	ErrMalformed = errors.New("session token malformed")
	// ErrSignatureInvalid reports a token whose signature does not verify under the codec's secret and method.
	ErrSignatureInvalid = errors.New("session token signature invalid")
	// ErrExpired reports a correctly signed token whose expiry is not after the current time.
	ErrExpired = errors.New("session token expired")
)

// Config holds the codec settings.
type Config struct {
	Secret        []byte
	SigningMethod SigningMethod
	// MaxFutureIAT bounds how far in the future an issued-at claim may lie. Zero selects ten minutes.
	MaxFutureIAT time.Duration
	// Now is the clock used for expiry checks. Nil selects time.Now.
	Now func() time.Time
}

// SessionClaims is the payload carried inside a session token.
type SessionClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and parses session tokens. It is safe for concurrent use.
type Codec struct {
	secret       []byte
	method       *jwt.SigningMethodHMAC
	maxFutureIAT time.Duration
	now          func() time.Time
}

// NewCodec validates cfg and returns a codec bound to its secret and method.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretBytes)
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	var method *jwt.SigningMethodHMAC
	switch cfg.SigningMethod {
	case "", MethodHS256:
		method = jwt.SigningMethodHS256
	case MethodHS384:
		method = jwt.SigningMethodHS384
	case MethodHS512:
		method = jwt.SigningMethodHS512
	default:
		return nil, errors.New("unsupported signing method")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Codec{
		secret:       secret,
		method:       method,
		maxFutureIAT: cfg.MaxFutureIAT,
		now:          now,
	}, nil
}

// Algorithm returns the JOSE algorithm identifier written into every token header.
func (c *Codec) Algorithm() string {
	return c.method.Alg()
}

// Sign encodes claims and signs them. Times are carried as whole epoch seconds.
func (c *Codec) Sign(claims SessionClaims) (string, error) {
	if claims.Subject == "" {
		return "", errors.New("session claims require a subject")
	}
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		return "", errors.New("session claims must expire after they are issued")
	}

	token := jwt.NewWithClaims(c.method, jwt.RegisteredClaims{
		Subject:   claims.Subject,
		IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
	})

	return token.SignedString(c.secret)
}

// Parse verifies tokenStr and returns its claims.
//
// Checks run in order: structure, signature, expiry. A token that is tampered
// with is reported as [ErrSignatureInvalid] even when it has also expired.
func (c *Codec) Parse(tokenStr string) (SessionClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	var registered jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(tokenStr, &registered, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		return SessionClaims{}, classify(err)
	}

	if registered.Subject == "" || registered.ExpiresAt == nil {
		return SessionClaims{}, ErrMalformed
	}

	claims := SessionClaims{
		Subject:   registered.Subject,
		ExpiresAt: registered.ExpiresAt.Time,
	}
	if registered.IssuedAt != nil {
		if registered.IssuedAt.Time.After(c.now().Add(c.maxFutureIAT)) {
			return SessionClaims{}, fmt.Errorf("%w: issued-at too far in the future", ErrMalformed)
		}
		claims.IssuedAt = registered.IssuedAt.Time
	}

	return claims, nil
}

// classify collapses library errors into the three codec failure kinds.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
