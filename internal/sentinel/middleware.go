package sentinel

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderName is the diagnostic header set on blocked responses.
	HeaderName = "X-Sentinel"
	// HeaderBlockValue is the value of HeaderName on a hard block.
	HeaderBlockValue = "soft-block"
	// VerdictContextKey holds the verdict string in the gin context.
	VerdictContextKey = "sentinel_verdict"

	blockBody = "Not Found"
)

// Middleware returns a gin middleware that inspects every request and aborts
// blocked ones with a bare 404.
func (e *Engine) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		d := e.Inspect(c.Request.Context(), RequestFromHTTP(c.Request))
		c.Set(VerdictContextKey, d.Verdict.String())
		if d.Verdict == VerdictBlock {
			c.Header(HeaderName, HeaderBlockValue)
			c.String(http.StatusNotFound, blockBody)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Wrap guards a plain net/http handler.
func (e *Engine) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := e.Inspect(r.Context(), RequestFromHTTP(r))
		if d.Verdict == VerdictBlock {
			w.Header().Set(HeaderName, HeaderBlockValue)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(blockBody))
			return
		}
		next.ServeHTTP(w, r)
	})
}
