// Package audit delivers session audit events to a sink off the request path.
//
// A [Dispatcher] owns one goroutine and a bounded channel. When the channel is
// full it either drops the event and counts the drop, or blocks the caller until
// space frees up or the caller's context ends. Close drains what is queued.
//
// Events never contain secrets or raw tokens. Deciding which events to emit is
// left to the caller.
package audit
