package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	activitydomain "github.com/calybase/calybase-backend/internal/activity/domain"
	"github.com/calybase/calybase-backend/internal/auth"
	authdomain "github.com/calybase/calybase-backend/internal/auth/domain"
	"github.com/calybase/calybase-backend/internal/logger"
	"github.com/calybase/calybase-backend/internal/permissions/domain"
	"github.com/calybase/calybase-backend/internal/permissions/service"
)

const ctxResolver = "permissions_resolver"

// SecurityRecorder records denied access attempts in the audit log.
type SecurityRecorder interface {
	LogSecurityEvent(ctx context.Context, eventType, severity string, details map[string]interface{}) activitydomain.Entry
}

// AttachResolver gives every request its own resolver. The resolver's
// readiness is settled here from the identity set by the auth middleware;
// requests without one resolve anonymously.
func AttachResolver(factory *service.Factory) gin.HandlerFunc {
	return func(c *gin.Context) {
		ready := auth.NewReadiness()
		c.Set(ctxResolver, factory.New(ready))

		id, _ := auth.CurrentIdentity(c)
		ready.Resolve(id)
		c.Next()
	}
}

// Resolver returns the request's resolver, initialized. Failures are
// written to the response and reported as false.
func Resolver(c *gin.Context, log *logger.Logger) (*service.Resolver, bool) {
	v, ok := c.Get(ctxResolver)
	r, _ := v.(*service.Resolver)
	if !ok || r == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "permissions unavailable"})
		return nil, false
	}

	if err := r.Initialize(c.Request.Context()); err != nil {
		respondInitError(c, log, err)
		return nil, false
	}
	return r, true
}

func respondInitError(c *gin.Context, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, authdomain.ErrNoAuthenticatedUser):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Aucun utilisateur authentifié"})
	case errors.Is(err, authdomain.ErrUserNotFound):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Document utilisateur non trouvé"})
	default:
		logger.FromContext(c.Request.Context(), log).Error("permission initialization failed", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load permissions",
			"details": err.Error(),
		})
	}
}

// RequireCapability rejects callers whose role does not grant capability.
// Denials are recorded as security events.
func RequireCapability(capability domain.Capability, sec SecurityRecorder, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := Resolver(c, log)
		if !ok {
			return
		}

		if !r.HasPermission(capability) {
			if sec != nil {
				sec.LogSecurityEvent(c.Request.Context(), "unauthorized_access", "medium", map[string]interface{}{
					"capability": string(capability),
					"path":       c.FullPath(),
					"method":     c.Request.Method,
				})
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Insufficient permissions",
				"details": string(capability),
			})
			return
		}
		c.Next()
	}
}
