package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calybase/calybase-backend/internal/logger"
)

// Recovery turns a panic into a 500 and logs it with the request's logger.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.FromContext(c.Request.Context(), log).
			WithField("path", c.Request.URL.Path).
			Error("panic recovered", fmt.Errorf("%v", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Erreur interne du serveur"})
	})
}
