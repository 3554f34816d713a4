package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/calybase/calybase-backend/internal/auth/domain"
)

const usersCollection = "users"

// UserRepository reads and deletes users/{uid} profile documents.
type UserRepository struct {
	client *firestore.Client
}

func NewUserRepository(client *firestore.Client) *UserRepository {
	return &UserRepository{client: client}
}

// GetProfile retrieves a profile by Firebase UID.
func (r *UserRepository) GetProfile(ctx context.Context, uid string) (*domain.UserProfile, error) {
	snap, err := r.client.Collection(usersCollection).Doc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", uid, err)
	}

	var profile domain.UserProfile
	if err := snap.DataTo(&profile); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", uid, err)
	}
	profile.UID = snap.Ref.ID

	return &profile, nil
}

// ListProfiles returns the raw data of every profile document keyed by UID.
func (r *UserRepository) ListProfiles(ctx context.Context) (map[string]map[string]interface{}, error) {
	out := make(map[string]map[string]interface{})

	it := r.client.Collection(usersCollection).Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		out[snap.Ref.ID] = snap.Data()
	}

	return out, nil
}

// Exists reports whether a profile document exists for uid.
func (r *UserRepository) Exists(ctx context.Context, uid string) (bool, error) {
	_, err := r.client.Collection(usersCollection).Doc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get user %s: %w", uid, err)
	}
	return true, nil
}

// Delete removes the profile document of uid.
func (r *UserRepository) Delete(ctx context.Context, uid string) error {
	if _, err := r.client.Collection(usersCollection).Doc(uid).Delete(ctx); err != nil {
		return fmt.Errorf("delete user %s: %w", uid, err)
	}
	return nil
}
