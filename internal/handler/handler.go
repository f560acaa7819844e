package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MrEthical07/magicgate/middleware"
	"github.com/MrEthical07/magicgate/session"
)

// Sessions is the part of the session service the handlers use.
type Sessions interface {
	Redeem(ctx context.Context, token string) (string, error)
	Establish(ctx context.Context, w http.ResponseWriter, appID string) (string, error)
	FromRequest(r *http.Request) (*session.Session, bool)
	Logout(ctx context.Context, w http.ResponseWriter, current *session.Session)
}

type Handler struct {
	sessions Sessions
	missing  []string
	log      *zap.Logger
}

// NewHandler builds the HTTP handlers. missing lists required configuration
// keys that were absent at startup; it is reported by the health endpoint.
func NewHandler(sessions Sessions, missing []string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		missing:  append([]string(nil), missing...),
		log:      log.Named("http"),
	}
}

// RegisterRoutes mounts every route on r. The access gate is expected to be
// installed on r already.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/health", h.health)

	r.POST("/api/auth", h.authAction)
	r.GET("/api/auth", h.sessionStatus)

	r.GET("/auth", h.authEntry)
	r.GET("/auth/magic-link", h.magicLink)

	r.GET("/", h.home)
}

type sessionView struct {
	AppID string `json:"appId"`
}

type sessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	Session       *sessionView `json:"session"`
}

func newSessionResponse(sess *session.Session) sessionResponse {
	if sess == nil {
		return sessionResponse{}
	}
	return sessionResponse{Authenticated: true, Session: &sessionView{AppID: sess.AppID}}
}

func (h *Handler) home(c *gin.Context) {
	sess, ok := middleware.SessionFromContext(c.Request.Context())
	if !ok {
		// The gate admits "/" only with a session.
		h.internalError(c, nil)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sess))
}

func (h *Handler) internalError(c *gin.Context, err error) {
	if err != nil {
		h.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}
