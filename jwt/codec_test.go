package jwt

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestCodec(t *testing.T, clock *fakeClock) *Codec {
	t.Helper()
	c, err := NewCodec(Config{Secret: testSecret, Now: clock.Now})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func testClaims(now time.Time) SessionClaims {
	return SessionClaims{
		Subject:   "user-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestSignParseRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)

	claims := testClaims(clock.now)
	token, err := c.Sign(claims)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if got := strings.Count(token, "."); got != 2 {
		t.Fatalf("expected three segments, got %d separators", got)
	}

	parsed, err := c.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Subject != claims.Subject {
		t.Fatalf("subject mismatch: %q != %q", parsed.Subject, claims.Subject)
	}
	if !parsed.IssuedAt.Equal(claims.IssuedAt) || !parsed.ExpiresAt.Equal(claims.ExpiresAt) {
		t.Fatalf("time mismatch: got iat=%v exp=%v want iat=%v exp=%v",
			parsed.IssuedAt, parsed.ExpiresAt, claims.IssuedAt, claims.ExpiresAt)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)

	a, err := c.Sign(testClaims(clock.now))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	b, err := c.Sign(testClaims(clock.now))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if a != b {
		t.Fatal("expected identical claims to produce identical tokens")
	}
}

func TestSignRejectsInvalidClaims(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)

	if _, err := c.Sign(SessionClaims{IssuedAt: clock.now, ExpiresAt: clock.now.Add(time.Hour)}); err == nil {
		t.Fatal("expected empty subject to be rejected")
	}
	if _, err := c.Sign(SessionClaims{Subject: "u", IssuedAt: clock.now, ExpiresAt: clock.now}); err == nil {
		t.Fatal("expected zero lifetime to be rejected")
	}
}

func TestParseExpiredAtBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)

	token, err := c.Sign(testClaims(clock.now))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	clock.now = clock.now.Add(time.Hour - time.Second)
	if _, err := c.Parse(token); err != nil {
		t.Fatalf("expected token to be valid one second before expiry: %v", err)
	}

	clock.now = clock.now.Add(time.Second)
	if _, err := c.Parse(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired at expiry, got %v", err)
	}
}

func TestParseFlippedSignatureBits(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)

	token, err := c.Sign(testClaims(clock.now))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parts := strings.Split(token, ".")
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}

	for i := 0; i < len(sig)*8; i++ {
		mutated := make([]byte, len(sig))
		copy(mutated, sig)
		mutated[i/8] ^= 1 << (i % 8)
		tampered := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(mutated)
		if _, err := c.Parse(tampered); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("bit %d: expected ErrSignatureInvalid, got %v", i, err)
		}
	}
}

func TestParseTamperedClaimsRejectedBeforeExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)

	token, err := c.Sign(testClaims(clock.now))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parts := strings.Split(token, ".")
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode claims: %v", err)
	}
	forged := strings.Replace(string(payload), "user-1", "user-2", 1)
	tampered := parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(forged)) + "." + parts[2]

	clock.now = clock.now.Add(2 * time.Hour)
	if _, err := c.Parse(tampered); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for tampered expired token, got %v", err)
	}
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)

	claims := gjwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  gjwt.NewNumericDate(clock.now),
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Hour)),
	}

	hs512, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign hs512: %v", err)
	}
	if _, err := c.Parse(hs512); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for hs512 token, got %v", err)
	}

	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := c.Parse(none); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for alg=none token, got %v", err)
	}
}

func TestParseWrongSecret(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)

	other, err := NewCodec(Config{Secret: []byte("ffffffffffffffffffffffffffffffff"), Now: clock.Now})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	token, err := other.Sign(testClaims(clock.now))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Parse(token); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestParseMalformed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)

	cases := []string{
		"",
		"abc",
		"a.b",
		"a.b.c.d",
		"not.a.jwt",
		"eyJhbGciOiJIUzI1NiJ9.!!!.sig",
	}
	for _, tc := range cases {
		if _, err := c.Parse(tc); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: expected ErrMalformed, got %v", tc, err)
		}
	}
}

func TestParseMissingRequiredClaims(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)

	noExp, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.RegisteredClaims{
		Subject: "user-1",
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Parse(noExp); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for missing exp, got %v", err)
	}

	noSub, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Hour)),
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Parse(noSub); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for missing sub, got %v", err)
	}
}

func TestParseRejectsFutureIssuedAt(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)

	future := clock.now.Add(time.Hour)
	token, err := c.Sign(SessionClaims{Subject: "user-1", IssuedAt: future, ExpiresAt: future.Add(time.Hour)})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Parse(token); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for future iat, got %v", err)
	}
}

func TestParseIssuedAtSkewWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCodec(t, clock)

	edge := clock.now.Add(10 * time.Minute)
	claims := SessionClaims{Subject: "user-1", IssuedAt: edge, ExpiresAt: edge.Add(time.Hour)}
	token, err := c.Sign(claims)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parsed, err := c.Parse(token)
	if err != nil {
		t.Fatalf("iat at the skew limit must parse: %v", err)
	}
	if parsed.Subject != claims.Subject || !parsed.IssuedAt.Equal(edge) || !parsed.ExpiresAt.Equal(claims.ExpiresAt) {
		t.Fatalf("round trip mismatch: got %+v want %+v", parsed, claims)
	}

	beyond := edge.Add(time.Second)
	token, err = c.Sign(SessionClaims{Subject: "user-1", IssuedAt: beyond, ExpiresAt: beyond.Add(time.Hour)})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Parse(token); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed one second past the skew limit, got %v", err)
	}
}

func TestNewCodecValidation(t *testing.T) {
	if _, err := NewCodec(Config{Secret: []byte("short")}); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
	if _, err := NewCodec(Config{Secret: testSecret, SigningMethod: "ed25519"}); err == nil {
		t.Fatal("expected non-hmac method to be rejected")
	}
	if _, err := NewCodec(Config{Secret: testSecret, MaxFutureIAT: -time.Second}); err == nil {
		t.Fatal("expected negative MaxFutureIAT to be rejected")
	}

	c, err := NewCodec(Config{Secret: testSecret, SigningMethod: MethodHS384})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if c.Algorithm() != "HS384" {
		t.Fatalf("expected HS384, got %s", c.Algorithm())
	}
}
