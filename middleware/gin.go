package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Gin adapts the gate to a gin middleware. The gin chain continues only when
// the gate forwarded the request.
func Gin(g *Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		forwarded := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			forwarded = true
			c.Request = r
			c.Next()
		})

		g.Handler(next).ServeHTTP(c.Writer, c.Request)

		if !forwarded {
			c.Abort()
		}
	}
}
