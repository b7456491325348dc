// Package middleware adapts goSession.Engine to net/http.
//
//   - [Guard] verifies the Authorization header and injects the session into the request context.
//   - [SessionHandler] serves POST /session (login) and GET /session (re-authenticate).
//   - [WriteError] maps engine errors onto HTTP status codes and a JSON body.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens or compare passwords itself. Rejection causes beyond the public error
// taxonomy are never written to responses.
package middleware
