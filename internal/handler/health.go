package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status         string   `json:"status"`
	Timestamp      string   `json:"timestamp"`
	MissingEnvVars []string `json:"missingEnvVars,omitempty"`
}

// health reports configuration completeness. It always answers 200 and never
// echoes configuration values.
func (h *Handler) health(c *gin.Context) {
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if len(h.missing) > 0 {
		resp.Status = "unhealthy"
		resp.MissingEnvVars = h.missing
	}
	c.JSON(http.StatusOK, resp)
}
