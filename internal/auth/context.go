package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/calybase/calybase-backend/internal/auth/domain"
)

const (
	CtxFirebaseUID = "firebase_uid"
	CtxEmail       = "email"
	CtxRole        = "role"
)

type identityKey struct{}

// WithIdentity stores the authenticated caller in a standard context.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	if !ok || id.UID == "" {
		return domain.Identity{}, false
	}
	return id, true
}

// SetIdentity stores the caller in both the Gin context and the request
// context so services below the handler can read it.
func SetIdentity(c *gin.Context, id domain.Identity) {
	c.Set(CtxFirebaseUID, id.UID)
	c.Set(CtxEmail, id.Email)
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
}

// UserFirebaseUID extracts the Firebase UID from the Gin context.
// This is set by the auth middleware.
func UserFirebaseUID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(CtxFirebaseUID))
}

// CurrentIdentity returns the caller set by the auth middleware.
func CurrentIdentity(c *gin.Context) (domain.Identity, bool) {
	return IdentityFromContext(c.Request.Context())
}

// SetResolvedRole records the role the admin middleware settled on.
func SetResolvedRole(c *gin.Context, role domain.Role) {
	c.Set(CtxRole, string(role))
}

// ResolvedRole returns the role recorded by SetResolvedRole, if any.
func ResolvedRole(c *gin.Context) (domain.Role, bool) {
	v := c.GetString(CtxRole)
	if v == "" {
		return "", false
	}
	return domain.Role(v), true
}
