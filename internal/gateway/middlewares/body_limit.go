package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BodyLimit caps request bodies. The only JSON this service accepts
// is the token exchange, which fits in a few KB; anything bigger is a
// mistake or abuse and fails at the bind.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}

		c.Next()
	}
}
