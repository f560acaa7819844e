// Package audit relays redemption and logout outcomes to a sink off the
// request path.
//
// The session service decides which events to emit; this package only buffers
// and delivers them. Events carry a token prefix at most, never a full token or
// credential.
package audit
