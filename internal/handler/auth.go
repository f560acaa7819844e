package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/magicgate/session"
)

const (
	actionVerify  = "verify"
	actionLogout  = "logout"
	actionSession = "session"
)

// authRequest keeps both fields loosely typed: a non-string action is an
// unknown action and a non-string token is a malformed token, not a decode
// failure.
type authRequest struct {
	Action any `json:"action"`
	Token  any `json:"token"`
}

func (h *Handler) authAction(c *gin.Context) {
	req, err := decodeAuthRequest(c.Request.Body)
	if err != nil {
		h.internalError(c, err)
		return
	}

	action, _ := req.Action.(string)
	switch action {
	case actionVerify:
		token, _ := req.Token.(string)
		h.verify(c, token)
	case actionLogout:
		h.logout(c)
	case actionSession:
		h.sessionStatus(c)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
	}
}

// decodeAuthRequest accepts exactly one JSON value; anything after it is an
// error.
func decodeAuthRequest(body io.Reader) (authRequest, error) {
	var req authRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("decode auth request: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return req, errors.New("decode auth request: trailing data after body")
	}
	return req, nil
}

func (h *Handler) verify(c *gin.Context, token string) {
	ctx := c.Request.Context()

	appID, err := h.sessions.Redeem(ctx, token)
	switch {
	case errors.Is(err, session.ErrMalformedToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid token"})
		return
	case errors.Is(err, session.ErrUnknownOrConsumedToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	case errors.Is(err, session.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many attempts"})
		return
	case err != nil:
		h.internalError(c, err)
		return
	}

	if _, err := h.sessions.Establish(ctx, c.Writer, appID); err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "appId": appID})
}

func (h *Handler) logout(c *gin.Context) {
	current, _ := h.sessions.FromRequest(c.Request)
	h.sessions.Logout(c.Request.Context(), c.Writer, current)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) sessionStatus(c *gin.Context) {
	sess, _ := h.sessions.FromRequest(c.Request)
	c.JSON(http.StatusOK, newSessionResponse(sess))
}
