package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/calybase/calybase-backend/internal/auth"
	authdomain "github.com/calybase/calybase-backend/internal/auth/domain"
	"github.com/calybase/calybase-backend/internal/logger"
	"github.com/calybase/calybase-backend/internal/metrics"
	"github.com/calybase/calybase-backend/internal/permissions/domain"
)

const DefaultReadyTimeout = 3 * time.Second

type ProfileReader interface {
	GetProfile(ctx context.Context, uid string) (*authdomain.UserProfile, error)
}

type ConfigReader interface {
	Get(ctx context.Context) (*domain.SystemConfig, error)
}

// Factory builds one Resolver per request.
type Factory struct {
	profiles ProfileReader
	configs  ConfigReader
	timeout  time.Duration
	log      *logger.Logger
	metrics  *metrics.Metrics
}

func NewFactory(profiles ProfileReader, configs ConfigReader, readyTimeout time.Duration, log *logger.Logger, m *metrics.Metrics) *Factory {
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Factory{profiles: profiles, configs: configs, timeout: readyTimeout, log: log.WithComponent("permissions"), metrics: m}
}

// New returns an uninitialized resolver that will wait on ready for the
// caller identity.
func (f *Factory) New(ready *auth.Readiness) *Resolver {
	return &Resolver{factory: f, ready: ready}
}

// Resolver answers capability questions for one caller. It must be
// initialized first; before that every check is denied.
type Resolver struct {
	factory *Factory
	ready   *auth.Readiness

	mu          sync.RWMutex
	initialized bool
	identity    authdomain.Identity
	role        authdomain.Role
	config      *domain.SystemConfig
}

// Initialize waits for the caller identity, then loads the caller profile
// and the system configuration. A missing configuration document yields an
// empty configuration. Calling it again after success is a no-op.
func (r *Resolver) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}

	f := r.factory
	id, err := r.ready.Wait(ctx, f.timeout)
	if err != nil {
		return err
	}

	profile, err := f.profiles.GetProfile(ctx, id.UID)
	if err != nil {
		if errors.Is(err, authdomain.ErrUserNotFound) {
			f.log.Warnf("no user document for %s", id.UID)
		}
		return fmt.Errorf("load profile: %w", err)
	}

	cfg, err := f.configs.Get(ctx)
	switch {
	case errors.Is(err, domain.ErrConfigNotFound):
		f.log.Warn("system configuration missing, using empty configuration")
		cfg = &domain.SystemConfig{}
	case err != nil:
		return fmt.Errorf("load system config: %w", err)
	}

	r.identity = id
	r.role = authdomain.Role(profile.Role)
	r.config = cfg
	r.initialized = true
	f.log.Debugf("permissions initialized for %s with role %q", id.UID, r.role)
	return nil
}

func (r *Resolver) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// HasPermission resolves c for the caller's role.
func (r *Resolver) HasPermission(c domain.Capability) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.initialized {
		r.factory.log.Warnf("permission %s checked before initialization", c)
		return false
	}

	granted := r.config.Allows(r.role, c)
	r.factory.metrics.PermissionCheck(string(c), granted)
	return granted
}

func (r *Resolver) CanDeleteMembers() bool       { return r.HasPermission(domain.CanDeleteMembers) }
func (r *Resolver) CanImportMembers() bool       { return r.HasPermission(domain.CanImportMembers) }
func (r *Resolver) CanModifyMembers() bool       { return r.HasPermission(domain.CanModifyMembers) }
func (r *Resolver) CanCreateMembers() bool       { return r.HasPermission(domain.CanCreateMembers) }
func (r *Resolver) CanManageMemberAvatars() bool { return r.HasPermission(domain.CanManageMemberAvatars) }
func (r *Resolver) CanViewMemberDetails() bool   { return r.HasPermission(domain.CanViewMemberDetails) }
func (r *Resolver) CanBulkDeleteMembers() bool   { return r.HasPermission(domain.CanBulkDeleteMembers) }

// RequiresApprovalForDeletion is true until the resolver is initialized.
func (r *Resolver) RequiresApprovalForDeletion() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.initialized {
		return true
	}
	return r.config.RequiresApprovalForDeletion()
}

func (r *Resolver) Role() authdomain.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.role
}

func (r *Resolver) Identity() authdomain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity
}

func (r *Resolver) IsAdmin() bool {
	return r.Role().IsAdmin()
}

func (r *Resolver) IsSuperAdmin() bool {
	return r.Role() == authdomain.RoleSuperAdmin
}

func (r *Resolver) MaxMembersPerUser() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.MaxMembersPerUser()
}

// Snapshot resolves every known capability.
func (r *Resolver) Snapshot() map[domain.Capability]bool {
	out := make(map[domain.Capability]bool, len(domain.Capabilities))
	for _, c := range domain.Capabilities {
		out[c] = r.HasPermission(c)
	}
	return out
}
