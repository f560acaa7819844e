// Package stores holds the Redis adapter for single-use magic link tokens.
//
// # Design
//
// Records live under magic_link_token:<token> as JSON {"appId": "..."} and are
// written by the external link issuer. Every call is bounded by a per-call
// timeout. Take reads and deletes a record with one Lua script so a token can
// be redeemed once even under concurrent requests.
//
// Get, Delete and Take return sentinel errors. Lookup, Consume and Invalidate
// wrap them for the request path: every failure is reported as absent, backend
// errors are logged, and Invalidate never fails the caller.
//
// # What this package must NOT do
//
//   - Log full tokens; only a short prefix is kept for correlation.
//   - Interpret sessions or make access decisions.
package stores
