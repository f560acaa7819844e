package session

import "errors"

var (
	// ErrMalformedToken reports a magic link token that fails the syntax check.
	// No store call is made for such tokens.
	ErrMalformedToken = errors.New("malformed magic link token")
	// ErrUnknownOrConsumedToken covers unknown, expired, already redeemed and
	// unreadable tokens alike.
	ErrUnknownOrConsumedToken = errors.New("unknown or consumed magic link token")
	// ErrTooManyAttempts is returned when the client exceeded its budget of
	// failed redemptions.
	ErrTooManyAttempts = errors.New("too many failed redemptions")
	// ErrCredentialUnavailable is returned when no signing secret is configured.
	ErrCredentialUnavailable = errors.New("session credential unavailable")
)
