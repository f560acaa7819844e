// Package jwt issues and verifies the signed, self-contained session credentials
// carried in the session cookie.
//
// A credential is valid iff its HS256 signature verifies against the process
// secret AND its exp has not elapsed AND its payload has the expected shape
// (string appId, integer millisecond iat). There is no server-side state; a
// credential cannot be revoked before it expires.
package jwt
