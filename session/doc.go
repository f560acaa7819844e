// Package session turns redeemed magic link tokens into signed session
// credentials and reads them back from requests.
//
// # Redemption
//
// A magic link token is checked for syntax first; malformed tokens never reach
// the store. Well-formed tokens are consumed atomically by default, or looked
// up and then invalidated when atomic redemption is disabled. In the second
// mode two concurrent redemptions of the same token may both succeed.
//
// # Sessions
//
// Sessions are stateless. The credential lives only in the auth-session
// cookie and is valid until it expires. Clearing the cookie on logout does not
// revoke a copy held elsewhere.
//
// # What this package must NOT do
//
//   - Log or audit full magic link tokens or credentials.
//   - Perform network I/O when reading a session from a request.
package session
