package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"

	"github.com/calybase/calybase-backend/internal/auth/domain"
)

// TokenVerifier verifies bearer ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*domain.VerifiedToken, error)
}

// IdentityProvider is the part of Firebase Authentication the backend uses.
type IdentityProvider interface {
	TokenVerifier
	ListUsers(ctx context.Context) ([]domain.IdentityUser, error)
	DeleteUser(ctx context.Context, uid string) error
}

// FirebaseIdentity adapts *auth.Client to IdentityProvider.
type FirebaseIdentity struct {
	client *auth.Client
}

func NewFirebaseIdentity(client *auth.Client) *FirebaseIdentity {
	return &FirebaseIdentity{client: client}
}

func (f *FirebaseIdentity) VerifyIDToken(ctx context.Context, idToken string) (*domain.VerifiedToken, error) {
	tok, err := f.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	vt := &domain.VerifiedToken{UID: tok.UID, Claims: tok.Claims}
	if email, ok := tok.Claims["email"].(string); ok {
		vt.Email = email
	}
	return vt, nil
}

func (f *FirebaseIdentity) ListUsers(ctx context.Context) ([]domain.IdentityUser, error) {
	var users []domain.IdentityUser

	it := f.client.Users(ctx, "")
	for {
		rec, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, toIdentityUser(rec))
	}

	return users, nil
}

func (f *FirebaseIdentity) DeleteUser(ctx context.Context, uid string) error {
	return f.client.DeleteUser(ctx, uid)
}

func toIdentityUser(rec *auth.ExportedUserRecord) domain.IdentityUser {
	u := domain.IdentityUser{
		UID:           rec.UID,
		Email:         rec.Email,
		EmailVerified: rec.EmailVerified,
		Disabled:      rec.Disabled,
		CustomClaims:  rec.CustomClaims,
		ProviderData:  make([]domain.ProviderInfo, 0, len(rec.ProviderUserInfo)),
	}

	if md := rec.UserMetadata; md != nil {
		u.Metadata.CreationTime = formatMillis(md.CreationTimestamp)
		u.Metadata.LastSignInTime = formatMillis(md.LastLogInTimestamp)
	}

	for _, p := range rec.ProviderUserInfo {
		if p == nil {
			continue
		}
		u.ProviderData = append(u.ProviderData, domain.ProviderInfo{
			ProviderID:  p.ProviderID,
			UID:         p.UID,
			Email:       p.Email,
			DisplayName: p.DisplayName,
		})
	}

	return u
}

// formatMillis renders an epoch-millisecond timestamp the way the Firebase
// console does (RFC 1123, GMT).
func formatMillis(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(http.TimeFormat)
}
