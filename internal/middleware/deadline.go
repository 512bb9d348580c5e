package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// WriteDeadline pushes the connection's write deadline d past the start of the request, for
// routes that legitimately outlive the server-wide WriteTimeout. d <= 0 is a no-op.
func WriteDeadline(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d > 0 {
			rc := http.NewResponseController(c.Writer)
			if err := rc.SetWriteDeadline(time.Now().Add(d)); err != nil && !errors.Is(err, http.ErrNotSupported) {
				_ = c.Error(err)
			}
		}
		c.Next()
	}
}
