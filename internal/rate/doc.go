// Package rate implements the Redis-backed throttle on failed magic link
// redemptions.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit, one key per
// client under the mlr: prefix. Only failures are counted; a successful
// redemption leaves the counter alone.
package rate
