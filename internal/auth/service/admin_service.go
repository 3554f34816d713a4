package service

import (
	"context"
	"fmt"

	"github.com/calybase/calybase-backend/internal/auth"
	"github.com/calybase/calybase-backend/internal/auth/domain"
	"github.com/calybase/calybase-backend/internal/logger"
)

// ProfileStore is the users collection as seen by admin operations.
type ProfileStore interface {
	ListProfiles(ctx context.Context) (map[string]map[string]interface{}, error)
	Exists(ctx context.Context, uid string) (bool, error)
	Delete(ctx context.Context, uid string) error
}

// UserEntry is one identity account merged with its profile document.
type UserEntry struct {
	domain.IdentityUser
	Firestore         map[string]interface{} `json:"firestore"`
	HasFirestoreDoc   bool                   `json:"hasFirestoreDoc"`
	NeedsFirestoreDoc bool                   `json:"needsFirestoreDoc"`
	DisplayRole       string                 `json:"displayRole"`
	DisplayStatus     string                 `json:"displayStatus"`
}

type Summary struct {
	TotalAuthUsers        int `json:"totalAuthUsers"`
	TotalFirestoreUsers   int `json:"totalFirestoreUsers"`
	UsersWithBothRecords  int `json:"usersWithBothRecords"`
	UsersMissingFirestore int `json:"usersMissingFirestore"`
}

type UserListing struct {
	Users   []UserEntry `json:"users"`
	Summary Summary     `json:"summary"`
}

// DeleteResult reports what DeleteUser removed.
type DeleteResult struct {
	ProfileDeleted bool
	// ProfileError is set when the profile could not be removed after the
	// identity account was deleted.
	ProfileError error
}

type AdminService struct {
	identity auth.IdentityProvider
	profiles ProfileStore
	log      *logger.Logger
}

func NewAdminService(identity auth.IdentityProvider, profiles ProfileStore, log *logger.Logger) *AdminService {
	if log == nil {
		log = logger.Nop()
	}
	return &AdminService{identity: identity, profiles: profiles, log: log.WithComponent("user_admin")}
}

// ListUsers merges every identity account with its users/{uid} document.
func (s *AdminService) ListUsers(ctx context.Context) (*UserListing, error) {
	accounts, err := s.identity.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identity users: %w", err)
	}
	s.log.Infof("found %d identity users", len(accounts))

	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user profiles: %w", err)
	}
	s.log.Infof("found %d user profiles", len(profiles))

	listing := &UserListing{Users: make([]UserEntry, 0, len(accounts))}
	for _, acc := range accounts {
		entry := mergeUser(acc, profiles[acc.UID])
		if entry.HasFirestoreDoc {
			listing.Summary.UsersWithBothRecords++
		} else {
			listing.Summary.UsersMissingFirestore++
		}
		listing.Users = append(listing.Users, entry)
	}
	listing.Summary.TotalAuthUsers = len(accounts)
	listing.Summary.TotalFirestoreUsers = len(profiles)

	return listing, nil
}

func mergeUser(acc domain.IdentityUser, profile map[string]interface{}) UserEntry {
	has := profile != nil
	entry := UserEntry{
		IdentityUser:      acc,
		Firestore:         profile,
		HasFirestoreDoc:   has,
		NeedsFirestoreDoc: !has,
		DisplayRole:       string(domain.RoleUser),
	}

	if role, _ := profile["role"].(string); role != "" {
		entry.DisplayRole = role
	}

	switch st, _ := profile["status"].(string); {
	case st != "":
		entry.DisplayStatus = st
	case has:
		entry.DisplayStatus = "unknown"
	default:
		entry.DisplayStatus = "missing-firestore"
	}
	return entry
}

// DeleteUser removes the identity account, then the profile document if
// one exists. Once the account is gone the call succeeds; a profile that
// could not be removed is logged and reported in the result.
func (s *AdminService) DeleteUser(ctx context.Context, uid, email string) (*DeleteResult, error) {
	if uid == "" || email == "" {
		return nil, domain.ErrMissingDeleteFields
	}

	s.log.Infof("deleting user %s (%s)", email, uid)
	if err := s.identity.DeleteUser(ctx, uid); err != nil {
		return nil, fmt.Errorf("delete identity %s: %w", uid, err)
	}

	res := &DeleteResult{}
	exists, err := s.profiles.Exists(ctx, uid)
	if err != nil {
		s.log.Errorf(err, "profile lookup failed after deleting %s", email)
		res.ProfileError = err
		return res, nil
	}
	if !exists {
		return res, nil
	}

	if err := s.profiles.Delete(ctx, uid); err != nil {
		s.log.Errorf(err, "profile of %s left behind", email)
		res.ProfileError = err
		return res, nil
	}
	res.ProfileDeleted = true
	return res, nil
}

// Reconcile returns only the summary of ListUsers plus the uids of identity
// accounts that have no profile document.
func (s *AdminService) Reconcile(ctx context.Context) (Summary, []string, error) {
	listing, err := s.ListUsers(ctx)
	if err != nil {
		return Summary{}, nil, err
	}
	var missing []string
	for _, u := range listing.Users {
		if u.NeedsFirestoreDoc {
			missing = append(missing, u.UID)
		}
	}
	return listing.Summary, missing, nil
}
