package goSession

import "errors"

var (
	// ErrInvalidCredentials is returned by Initiate when the identifier is unknown or the secret does not match.
	// Both cases return this exact value so callers cannot tell them apart.
	ErrInvalidCredentials = errors.New("invalid username and/or password")
	// ErrUnauthorized is returned by Verify when no bearer token was presented.
	ErrUnauthorized = errors.New("no authorization token was found")
	// ErrAuthTokenInvalid is returned by Verify for any presented token that does not authenticate a live user.
	ErrAuthTokenInvalid = errors.New("authorization token invalid")
	// ErrUserStoreUnavailable wraps errors returned by a UserResolver.
	ErrUserStoreUnavailable = errors.New("user store unavailable")
	// ErrTokenIssueFailed is returned by Initiate when a token cannot be signed for an authenticated user.
	ErrTokenIssueFailed = errors.New("session token could not be issued")
	// ErrEngineNotReady is returned when an Engine method is called on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
