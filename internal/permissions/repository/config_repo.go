package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authdomain "github.com/calybase/calybase-backend/internal/auth/domain"
	"github.com/calybase/calybase-backend/internal/permissions/domain"
)

const (
	configCollection = "systemConfig"
	configDocument   = "settings"
)

// ConfigStore loads and replaces the system configuration.
type ConfigStore interface {
	Get(ctx context.Context) (*domain.SystemConfig, error)
	Save(ctx context.Context, cfg *domain.SystemConfig) error
}

// configDoc mirrors the stored document. Permission values are kept raw so
// a defined non-boolean value is still distinguishable from an absent key.
type configDoc struct {
	Permissions      map[string]map[string]interface{} `firestore:"permissions"`
	MemberManagement *domain.MemberManagement          `firestore:"memberManagement"`
}

// FirestoreConfigRepository reads systemConfig/settings.
type FirestoreConfigRepository struct {
	client *firestore.Client
}

func NewFirestoreConfigRepository(client *firestore.Client) *FirestoreConfigRepository {
	return &FirestoreConfigRepository{client: client}
}

func (r *FirestoreConfigRepository) doc() *firestore.DocumentRef {
	return r.client.Collection(configCollection).Doc(configDocument)
}

func (r *FirestoreConfigRepository) Get(ctx context.Context) (*domain.SystemConfig, error) {
	snap, err := r.doc().Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, domain.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get system config: %w", err)
	}

	var doc configDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode system config: %w", err)
	}
	return fromDoc(doc), nil
}

// Save replaces the whole document.
func (r *FirestoreConfigRepository) Save(ctx context.Context, cfg *domain.SystemConfig) error {
	if _, err := r.doc().Set(ctx, toDoc(cfg)); err != nil {
		return fmt.Errorf("save system config: %w", err)
	}
	return nil
}

// fromDoc converts a stored document. A key that is present counts as
// defined; only a literal true grants the capability.
func fromDoc(doc configDoc) *domain.SystemConfig {
	cfg := &domain.SystemConfig{
		Permissions:      make(map[authdomain.Role]domain.CapabilitySet, len(doc.Permissions)),
		MemberManagement: doc.MemberManagement,
	}
	for role, caps := range doc.Permissions {
		set := make(domain.CapabilitySet, len(caps))
		for name, v := range caps {
			b, _ := v.(bool)
			set[domain.Capability(name)] = domain.Bool(b)
		}
		cfg.Permissions[authdomain.Role(role)] = set
	}
	return cfg
}

func toDoc(cfg *domain.SystemConfig) map[string]interface{} {
	perms := make(map[string]interface{}, len(cfg.Permissions))
	for role, caps := range cfg.Permissions {
		set := make(map[string]interface{}, len(caps))
		for name, v := range caps {
			if v != nil {
				set[string(name)] = *v
			}
		}
		perms[string(role)] = set
	}

	out := map[string]interface{}{"permissions": perms}
	if mm := cfg.MemberManagement; mm != nil {
		out["memberManagement"] = map[string]interface{}{
			"allowMemberDeletion":        mm.AllowMemberDeletion,
			"allowExcelImport":           mm.AllowExcelImport,
			"allowMemberModification":    mm.AllowMemberModification,
			"allowMemberCreation":        mm.AllowMemberCreation,
			"allowAvatarManagement":      mm.AllowAvatarManagement,
			"requireApprovalForDeletion": mm.RequireApprovalForDeletion,
			"maxMembersPerUser":          mm.MaxMembersPerUser,
		}
	}
	return out
}
