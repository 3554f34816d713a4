package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/calybase/calybase-backend/internal/logger"
	"github.com/calybase/calybase-backend/internal/reqctx"
)

const HeaderRequestID = "X-Request-Id"

// RequestID ensures every request has a stable request ID.
// - Reads X-Request-Id header if present, otherwise generates one
// - Stores it in both Gin context and standard context as "request_id"
// - Attaches a request-scoped logger to the standard context
// - Echoes it back in response header X-Request-Id
// - Logs method, path, status and latency once the request completes
func RequestID(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if rid == "" {
			rid = uuid.NewString()
		}

		reqLog := log.WithRequestID(rid)
		c.Set("request_id", rid)
		ctx := reqctx.WithRequestID(c.Request.Context(), rid)
		c.Request = c.Request.WithContext(reqLog.WithContext(ctx))
		c.Writer.Header().Set(HeaderRequestID, rid)

		start := time.Now()
		c.Next()

		reqLog.
			WithField("method", c.Request.Method).
			WithField("path", c.Request.URL.Path).
			WithField("status", c.Writer.Status()).
			WithField("latency_ms", time.Since(start).Milliseconds()).
			Info("request completed")
	}
}
