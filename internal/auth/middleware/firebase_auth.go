package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/calybase/calybase-backend/internal/auth"
	"github.com/calybase/calybase-backend/internal/auth/domain"
	"github.com/calybase/calybase-backend/internal/logger"
)

// ProfileReader loads users/{uid} documents for the role fallback.
type ProfileReader interface {
	GetProfile(ctx context.Context, uid string) (*domain.UserProfile, error)
}

// FirebaseAuthMiddleware validates Firebase ID tokens and stores the caller
// identity in the request.
func FirebaseAuthMiddleware(verifier auth.TokenVerifier, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			return
		}

		decoded, err := verifier.VerifyIDToken(c.Request.Context(), token)
		if err != nil {
			logger.FromContext(c.Request.Context(), log).Warnf("token verification failed: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid authorization token",
				"details": err.Error(),
			})
			return
		}

		auth.SetIdentity(c, decoded.Identity())
		c.Next()
	}
}

// OptionalFirebaseAuth verifies a bearer token when one is sent and lets
// requests without one through anonymously. A token that fails
// verification is still rejected.
func OptionalFirebaseAuth(verifier auth.TokenVerifier, log *logger.Logger) gin.HandlerFunc {
	required := FirebaseAuthMiddleware(verifier, log)
	return func(c *gin.Context) {
		if extractToken(c) == "" {
			c.Next()
			return
		}
		required(c)
	}
}

// RequireAdmin lets admin and superAdmin callers through.
func RequireAdmin(profiles ProfileReader, log *logger.Logger) gin.HandlerFunc {
	return RequireRole(profiles, log, domain.Role.IsAdmin)
}

// RequireSuperAdmin lets only superAdmin callers through.
func RequireSuperAdmin(profiles ProfileReader, log *logger.Logger) gin.HandlerFunc {
	return RequireRole(profiles, log, func(r domain.Role) bool { return r == domain.RoleSuperAdmin })
}

// RequireRole checks the token's role claim first and only reads the
// Firestore profile when the claim does not satisfy allowed. Claims can lag
// behind a role granted moments ago; the profile is authoritative.
// Must run after FirebaseAuthMiddleware.
func RequireRole(profiles ProfileReader, log *logger.Logger, allowed func(domain.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := auth.CurrentIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			return
		}

		if claimRole := domain.ParseRole(id.ClaimRole); allowed(claimRole) {
			auth.SetResolvedRole(c, claimRole)
			c.Next()
			return
		}

		role := domain.RoleUser
		profile, err := profiles.GetProfile(c.Request.Context(), id.UID)
		switch {
		case err == nil:
			role = profile.ProfileRole()
		case errors.Is(err, domain.ErrUserNotFound):
		default:
			logger.FromContext(c.Request.Context(), log).Errorf(err, "role lookup failed for %s", id.UID)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to resolve user role",
				"details": err.Error(),
			})
			return
		}

		if !allowed(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}

		auth.SetResolvedRole(c, role)
		c.Next()
	}
}

// extractToken extracts the Bearer token from the Authorization header
func extractToken(c *gin.Context) string {
	bearerToken := c.GetHeader("Authorization")
	if len(bearerToken) > 7 && strings.HasPrefix(bearerToken, "Bearer ") {
		return strings.TrimSpace(bearerToken[7:])
	}
	return ""
}
