// Package flows holds the Engine's request orchestration as pure functions.
//
// Each Run* function takes a Deps struct of plain functions and values and
// returns a result plus an error. The functions hold no state between calls
// and perform I/O only through their deps, which keeps them testable with
// in-memory fakes.
//
// This package must not import goSession. Sentinel errors and classification
// are injected by the caller.
package flows
