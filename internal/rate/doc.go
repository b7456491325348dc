// Package rate throttles failed logins with Redis fixed-window counters.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit of a window. Keys:
//   - <prefix>:throttle:id:<identifier> per lowercased identifier
//   - <prefix>:throttle:ip:<address> per client address, when PerIP is set
//
// A window stays closed until its key expires. Successful logins clear the
// identifier counter but never the address counter.
package rate
