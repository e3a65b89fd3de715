// README: Request logging middleware on the service logger.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tejith7/project-bolt/internal/logger"
)

func Logging(log logger.Logger) gin.HandlerFunc {
	log = log.Action("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if uid := CallerUID(c); uid != "" {
			args = append(args, "uid", uid)
		}
		switch {
		case status >= 500:
			log.Warn("request failed", append(args, "errors", c.Errors.String())...)
		case c.Request.URL.Path == "/health":
		default:
			log.Info("request", args...)
		}
	}
}
