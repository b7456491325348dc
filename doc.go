// Package goSession provides stateless session authentication: credential
// checks, signed time-limited session tokens, and token verification that
// re-derives the caller's identity on every request.
//
// An [Engine] is assembled once with a [Builder] and is safe for concurrent use:
//
//	engine, err := goSession.New().
//		WithConfig(cfg).
//		WithUserResolver(store).
//		Build()
//
//	res, err := engine.Initiate(ctx, "alice@example.com", "secret")
//	res, err = engine.Verify(ctx, r.Header.Get("Authorization"))
//
// # Error taxonomy
//
// Initiate fails with [ErrInvalidCredentials] for every credential problem.
// Verify fails with [ErrUnauthorized] when no bearer token is present and with
// [ErrAuthTokenInvalid] for every other rejection: malformed, forged, expired,
// or issued to a user who no longer exists. The specific cause is recorded in
// metrics, audit events and debug logs, never returned. Store failures are
// reported separately as [ErrUserStoreUnavailable].
//
// # What this package does not do
//
// Tokens cannot be revoked. They stay valid until they expire, and no
// session state is kept server-side.
package goSession
