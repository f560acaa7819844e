package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/magicgate/session"
)

// Reason codes carried in the error query parameter of the auth entry.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonExpired      = "expired"
	ReasonInvalid      = "invalid"
	ReasonLogoutFailed = "logout_failed"
	ReasonRateLimited  = "rate_limited"
)

var reasonMessages = map[string]string{
	ReasonUnauthorized: "Authentication required",
	ReasonExpired:      "Magic link has expired",
	ReasonInvalid:      "Invalid magic link",
	ReasonLogoutFailed: "Logout failed",
	ReasonRateLimited:  "Too many attempts, try again later",
}

type entryResponse struct {
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) authEntry(c *gin.Context) {
	if _, ok := h.sessions.FromRequest(c.Request); ok {
		c.Redirect(http.StatusFound, "/")
		return
	}

	if code := c.Query("error"); code != "" {
		msg, ok := reasonMessages[code]
		if !ok {
			msg = "An error occurred"
		}
		c.JSON(http.StatusOK, entryResponse{State: "error", Error: code, Message: msg})
		return
	}
	if c.Query("success") == "logged_out" {
		c.JSON(http.StatusOK, entryResponse{State: "success", Message: "Successfully logged out"})
		return
	}
	c.JSON(http.StatusOK, entryResponse{State: "idle"})
}

// magicLink redeems the token from a clicked link and lands the browser on
// the home page, or back on the auth entry with a reason code.
func (h *Handler) magicLink(c *gin.Context) {
	ctx := c.Request.Context()

	appID, err := h.sessions.Redeem(ctx, c.Query("token"))
	switch {
	case errors.Is(err, session.ErrMalformedToken):
		c.Redirect(http.StatusFound, entryURL(ReasonInvalid))
		return
	case errors.Is(err, session.ErrTooManyAttempts):
		c.Redirect(http.StatusFound, entryURL(ReasonRateLimited))
		return
	case errors.Is(err, session.ErrCredentialUnavailable):
		h.internalError(c, err)
		return
	case err != nil:
		c.Redirect(http.StatusFound, entryURL(ReasonExpired))
		return
	}

	if _, err := h.sessions.Establish(ctx, c.Writer, appID); err != nil {
		h.internalError(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

func entryURL(reason string) string {
	return "/auth?" + url.Values{"error": {reason}}.Encode()
}
