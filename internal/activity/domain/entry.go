package domain

import "time"

// Audit categories. The viewer filters and labels entries by these values.
const (
	CategoryAuthentication   = "authentication"
	CategoryMemberManagement = "member_management"
	CategoryDataImport       = "data_import"
	CategoryAdministration   = "administration"
	CategoryUserManagement   = "user_management"
	CategoryDataAccess       = "data_access"
	CategorySecurity         = "security"
	CategoryNavigation       = "navigation"
	CategorySystem           = "system"
)

// AnonymousUser fills userId and userEmail when no caller is authenticated.
const AnonymousUser = "anonymous"

var categoryNames = map[string]string{
	CategoryAuthentication:   "Authentification",
	CategoryMemberManagement: "Gestion membres",
	CategoryDataImport:       "Import données",
	CategoryAdministration:   "Administration",
	CategoryUserManagement:   "Gestion utilisateurs",
	CategoryDataAccess:       "Accès données",
	CategorySecurity:         "Sécurité",
	CategoryNavigation:       "Navigation",
	CategorySystem:           "Système",
}

// CategoryDisplayName returns the label shown in the log viewer.
func CategoryDisplayName(category string) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return categoryNames[CategorySystem]
}

// CategoryDisplayNames returns a copy of every known label.
func CategoryDisplayNames() map[string]string {
	out := make(map[string]string, len(categoryNames))
	for k, v := range categoryNames {
		out[k] = v
	}
	return out
}

// Entry is one immutable auditLog document.
type Entry struct {
	ID        string                 `json:"id,omitempty" firestore:"-"`
	Timestamp time.Time              `json:"timestamp" firestore:"timestamp"`
	SessionID string                 `json:"sessionId" firestore:"sessionId"`
	UserID    string                 `json:"userId" firestore:"userId"`
	UserEmail string                 `json:"userEmail" firestore:"userEmail"`
	Action    string                 `json:"action" firestore:"action"`
	Category  string                 `json:"category" firestore:"category"`
	Details   map[string]interface{} `json:"details" firestore:"details"`
	Metadata  map[string]interface{} `json:"metadata" firestore:"metadata"`
	System    SystemInfo             `json:"system" firestore:"system"`
}

type SystemInfo struct {
	Version  string `json:"version" firestore:"version"`
	Platform string `json:"platform" firestore:"platform"`
}

// Query bounds a store read. From and To are inclusive; zero values leave
// that side open. Results are ordered by timestamp, newest first.
type Query struct {
	From  time.Time
	To    time.Time
	Limit int
}
