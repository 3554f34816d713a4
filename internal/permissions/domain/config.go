package domain

import (
	"fmt"

	authdomain "github.com/calybase/calybase-backend/internal/auth/domain"
)

// Capability names a member-management action a role may be granted.
type Capability string

const (
	CanDeleteMembers       Capability = "canDeleteMembers"
	CanImportMembers       Capability = "canImportMembers"
	CanModifyMembers       Capability = "canModifyMembers"
	CanCreateMembers       Capability = "canCreateMembers"
	CanManageMemberAvatars Capability = "canManageMemberAvatars"
	CanViewMemberDetails   Capability = "canViewMemberDetails"
	CanBulkDeleteMembers   Capability = "canBulkDeleteMembers"
)

// Capabilities lists every capability reported by Snapshot.
var Capabilities = []Capability{
	CanViewMemberDetails,
	CanModifyMembers,
	CanDeleteMembers,
	CanImportMembers,
	CanCreateMembers,
	CanManageMemberAvatars,
	CanBulkDeleteMembers,
}

const DefaultMaxMembersPerUser = 1000

// CapabilitySet is one role's entry in the permissions map. A nil value
// means the role does not define the capability, which is not the same as
// an explicit false.
type CapabilitySet map[Capability]*bool

// Lookup returns the value and whether the set defines c at all.
func (s CapabilitySet) Lookup(c Capability) (bool, bool) {
	v, ok := s[c]
	if !ok || v == nil {
		return false, false
	}
	return *v, true
}

// MemberManagement holds the global toggles used when a role does not
// define a capability.
type MemberManagement struct {
	AllowMemberDeletion        bool `json:"allowMemberDeletion" firestore:"allowMemberDeletion" msgpack:"allowMemberDeletion"`
	AllowExcelImport           bool `json:"allowExcelImport" firestore:"allowExcelImport" msgpack:"allowExcelImport"`
	AllowMemberModification    bool `json:"allowMemberModification" firestore:"allowMemberModification" msgpack:"allowMemberModification"`
	AllowMemberCreation        bool `json:"allowMemberCreation" firestore:"allowMemberCreation" msgpack:"allowMemberCreation"`
	AllowAvatarManagement      bool `json:"allowAvatarManagement" firestore:"allowAvatarManagement" msgpack:"allowAvatarManagement"`
	RequireApprovalForDeletion bool `json:"requireApprovalForDeletion" firestore:"requireApprovalForDeletion" msgpack:"requireApprovalForDeletion"`
	MaxMembersPerUser          int  `json:"maxMembersPerUser,omitempty" firestore:"maxMembersPerUser,omitempty" msgpack:"maxMembersPerUser,omitempty"`
}

// globalFallback maps the capabilities that may fall back to a global toggle.
var globalFallback = map[Capability]func(MemberManagement) bool{
	CanDeleteMembers:       func(m MemberManagement) bool { return m.AllowMemberDeletion },
	CanImportMembers:       func(m MemberManagement) bool { return m.AllowExcelImport },
	CanModifyMembers:       func(m MemberManagement) bool { return m.AllowMemberModification },
	CanCreateMembers:       func(m MemberManagement) bool { return m.AllowMemberCreation },
	CanManageMemberAvatars: func(m MemberManagement) bool { return m.AllowAvatarManagement },
}

// SystemConfig is the systemConfig/settings document.
type SystemConfig struct {
	Permissions      map[authdomain.Role]CapabilitySet `json:"permissions" msgpack:"permissions"`
	MemberManagement *MemberManagement                 `json:"memberManagement,omitempty" msgpack:"memberManagement,omitempty"`
}

// Allows resolves capability c for role. A value the role defines wins,
// even when false. Otherwise the whitelisted capabilities fall back to
// their global toggle, and everything else is denied.
func (cfg *SystemConfig) Allows(role authdomain.Role, c Capability) bool {
	if cfg == nil {
		return false
	}
	if v, ok := cfg.Permissions[role].Lookup(c); ok {
		return v
	}
	if cfg.MemberManagement == nil {
		return false
	}
	if toggle, ok := globalFallback[c]; ok {
		return toggle(*cfg.MemberManagement)
	}
	return false
}

func (cfg *SystemConfig) RequiresApprovalForDeletion() bool {
	return cfg != nil && cfg.MemberManagement != nil && cfg.MemberManagement.RequireApprovalForDeletion
}

// MaxMembersPerUser returns the configured limit, or 1000 when unset.
func (cfg *SystemConfig) MaxMembersPerUser() int {
	if cfg == nil || cfg.MemberManagement == nil || cfg.MemberManagement.MaxMembersPerUser <= 0 {
		return DefaultMaxMembersPerUser
	}
	return cfg.MemberManagement.MaxMembersPerUser
}

// Bool returns a pointer to v, for building capability sets.
func Bool(v bool) *bool {
	return &v
}

// Known reports whether c is one of the defined capabilities.
func (c Capability) Known() bool {
	for _, k := range Capabilities {
		if k == c {
			return true
		}
	}
	return false
}

// Validate rejects unknown roles, unknown capabilities and a negative
// member limit.
func (cfg *SystemConfig) Validate() error {
	for role, caps := range cfg.Permissions {
		if !role.Valid() {
			return fmt.Errorf("%w: unknown role %q", ErrInvalidConfig, role)
		}
		for c := range caps {
			if !c.Known() {
				return fmt.Errorf("%w: unknown capability %q for role %s", ErrInvalidConfig, c, role)
			}
		}
	}
	if cfg.MemberManagement != nil && cfg.MemberManagement.MaxMembersPerUser < 0 {
		return fmt.Errorf("%w: maxMembersPerUser must not be negative", ErrInvalidConfig)
	}
	return nil
}
