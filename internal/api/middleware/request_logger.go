package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/sentinel/internal/sentinel"
)

// RequestLogger logs one line per request with the request_id and, when the
// engine inspected the request, its verdict.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    SanitizePath(c.Request.URL.Path),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}
		if v := c.GetString(sentinel.VerdictContextKey); v != "" {
			fields["sentinel"] = v
		}
		entry := GetRequestLogger(c).WithFields(fields)
		if c.Writer.Status() >= 500 {
			entry.Warn("handled request")
			return
		}
		entry.Info("handled request")
	}
}
