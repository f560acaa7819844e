// Package middleware provides the access gate placed in front of every route.
//
// The gate is a plain func(http.Handler) http.Handler with a bridge for gin.
// It decides from the request path and the session cookie alone:
//
//   - public paths and static assets pass unchanged;
//   - a valid session passes, with the session available through
//     [SessionFromContext];
//   - anything else gets a 307 to the auth entry with error=unauthorized.
//
// The gate never calls the token store.
package middleware
