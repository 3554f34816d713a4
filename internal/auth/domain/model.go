package domain

import "time"

// Role is the access level attached to a user profile.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superAdmin"
)

// Roles lists every known role, lowest privilege first.
var Roles = []Role{RoleUser, RoleAdmin, RoleSuperAdmin}

// ParseRole maps a stored role string to a Role. Unknown or empty values
// resolve to RoleUser.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RoleSuperAdmin:
		return RoleSuperAdmin
	default:
		return RoleUser
	}
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin || r == RoleSuperAdmin
}

// IsAdmin reports whether the role grants access to admin-only routes.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UID   string
	Email string
	// Role as read from the token's custom claims, possibly stale.
	ClaimRole string
}

// VerifiedToken is the subset of a verified Firebase ID token the backend uses.
type VerifiedToken struct {
	UID    string
	Email  string
	Claims map[string]interface{}
}

// Identity converts the verified token into a request identity.
func (t *VerifiedToken) Identity() Identity {
	id := Identity{UID: t.UID, Email: t.Email}
	if role, ok := t.Claims["role"].(string); ok {
		id.ClaimRole = role
	}
	if id.Email == "" {
		if email, ok := t.Claims["email"].(string); ok {
			id.Email = email
		}
	}
	return id
}

// UserProfile is the users/{uid} Firestore document.
type UserProfile struct {
	UID         string     `json:"uid" firestore:"-"`
	Email       string     `json:"email" firestore:"email"`
	Role        string     `json:"role" firestore:"role"`
	Status      string     `json:"status,omitempty" firestore:"status,omitempty"`
	DisplayName string     `json:"displayName,omitempty" firestore:"displayName,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty" firestore:"createdAt,omitempty"`
}

// ProfileRole returns the parsed role of the profile.
func (p *UserProfile) ProfileRole() Role {
	return ParseRole(p.Role)
}

// IdentityUser is an account as listed by the identity provider.
type IdentityUser struct {
	UID           string                 `json:"uid"`
	Email         string                 `json:"email"`
	EmailVerified bool                   `json:"emailVerified"`
	Disabled      bool                   `json:"disabled"`
	Metadata      IdentityMetadata       `json:"metadata"`
	CustomClaims  map[string]interface{} `json:"customClaims,omitempty"`
	ProviderData  []ProviderInfo         `json:"providerData"`
}

type IdentityMetadata struct {
	CreationTime   string `json:"creationTime,omitempty"`
	LastSignInTime string `json:"lastSignInTime,omitempty"`
}

type ProviderInfo struct {
	ProviderID  string `json:"providerId"`
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}
