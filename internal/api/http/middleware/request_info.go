package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/calybase/calybase-backend/internal/reqctx"
)

const HeaderSessionID = "X-Session-Id"

// RequestInfo records the client details that audit entries carry.
func RequestInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		info := reqctx.Info{
			UserAgent: c.Request.UserAgent(),
			URL:       c.Request.URL.String(),
			Referrer:  c.Request.Referer(),
			ClientIP:  c.ClientIP(),
			SessionID: c.GetHeader(HeaderSessionID),
		}
		c.Request = c.Request.WithContext(reqctx.WithInfo(c.Request.Context(), info))
		c.Next()
	}
}
