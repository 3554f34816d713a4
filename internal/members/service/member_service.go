package service

import (
	"context"
	"fmt"
	"time"

	activitydomain "github.com/calybase/calybase-backend/internal/activity/domain"
	"github.com/calybase/calybase-backend/internal/logger"
	"github.com/calybase/calybase-backend/internal/members/domain"
	permdomain "github.com/calybase/calybase-backend/internal/permissions/domain"
)

type Store interface {
	List(ctx context.Context) ([]domain.Member, error)
	Get(ctx context.Context, id string) (*domain.Member, error)
	Create(ctx context.Context, m *domain.Member) error
	CreateMany(ctx context.Context, members []domain.Member) error
	Update(ctx context.Context, id string, in domain.Input, at time.Time) error
	SetAvatar(ctx context.Context, id, url string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) error
}

// ActionRecorder writes member mutations to the audit log.
type ActionRecorder interface {
	LogMemberAction(ctx context.Context, action string, memberData, details map[string]interface{}) activitydomain.Entry
}

// DeletionGuard is the part of the caller's permissions consulted before a
// deletion.
type DeletionGuard interface {
	RequiresApprovalForDeletion() bool
	IsSuperAdmin() bool
}

type MemberService struct {
	store    Store
	recorder ActionRecorder
	log      *logger.Logger
	now      func() time.Time
}

func NewMemberService(store Store, recorder ActionRecorder, log *logger.Logger) *MemberService {
	if log == nil {
		log = logger.Nop()
	}
	return &MemberService{store: store, recorder: recorder, log: log.WithComponent("members"), now: time.Now}
}

func (s *MemberService) List(ctx context.Context) ([]domain.Member, error) {
	return s.store.List(ctx)
}

func (s *MemberService) Get(ctx context.Context, id string) (*domain.Member, error) {
	return s.store.Get(ctx, id)
}

func (s *MemberService) Create(ctx context.Context, in domain.Input, createdBy string) (*domain.Member, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	now := s.now()
	m := &domain.Member{
		Nom:       in.Nom,
		Prenom:    in.Prenom,
		Email:     in.Email,
		Telephone: in.Telephone,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: createdBy,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}

	s.recorder.LogMemberAction(ctx, "create", m.Summary(), nil)
	return m, nil
}

func (s *MemberService) Update(ctx context.Context, id string, in domain.Input) (*domain.Member, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, id, in, s.now()); err != nil {
		return nil, err
	}

	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recorder.LogMemberAction(ctx, "update", m.Summary(), map[string]interface{}{"changes": in})
	return m, nil
}

func (s *MemberService) SetAvatar(ctx context.Context, id, url string) error {
	if err := s.store.SetAvatar(ctx, id, url, s.now()); err != nil {
		return err
	}
	s.recorder.LogMemberAction(ctx, "avatar_update", map[string]interface{}{"id": id}, map[string]interface{}{"avatarUrl": url})
	return nil
}

func checkApproval(guard DeletionGuard) error {
	if guard.RequiresApprovalForDeletion() && !guard.IsSuperAdmin() {
		return permdomain.ErrApprovalRequired
	}
	return nil
}

// Delete removes one member. While deletions require approval only a
// super admin may delete.
func (s *MemberService) Delete(ctx context.Context, guard DeletionGuard, id string) error {
	if err := checkApproval(guard); err != nil {
		return err
	}

	m, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.recorder.LogMemberAction(ctx, "delete", m.Summary(), nil)
	return nil
}

// BulkDelete removes every member in ids and returns how many were
// requested.
func (s *MemberService) BulkDelete(ctx context.Context, guard DeletionGuard, ids []string) (int, error) {
	if err := checkApproval(guard); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: aucun membre sélectionné", domain.ErrInvalidMember)
	}

	if err := s.store.DeleteMany(ctx, ids); err != nil {
		return 0, err
	}

	s.log.Infof("bulk deleted %d members", len(ids))
	s.recorder.LogMemberAction(ctx, "bulk_delete", map[string]interface{}{"ids": ids}, map[string]interface{}{"count": len(ids)})
	return len(ids), nil
}
