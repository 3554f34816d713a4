package auth

import (
	"context"
	"sync"
	"time"

	"github.com/calybase/calybase-backend/internal/auth/domain"
)

// Readiness is a one-shot notification that the caller identity is known.
// It is resolved (or rejected) exactly once; later calls are ignored.
type Readiness struct {
	once sync.Once
	done chan struct{}
	id   domain.Identity
	err  error
}

func NewReadiness() *Readiness {
	return &Readiness{done: make(chan struct{})}
}

// ResolvedReadiness returns a Readiness that is already resolved with id.
func ResolvedReadiness(id domain.Identity) *Readiness {
	r := NewReadiness()
	r.Resolve(id)
	return r
}

func (r *Readiness) Resolve(id domain.Identity) {
	r.once.Do(func() {
		r.id = id
		close(r.done)
	})
}

func (r *Readiness) Reject(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Wait blocks until the identity is resolved, the context ends, or timeout
// elapses. Timeouts and anonymous resolutions yield ErrNoAuthenticatedUser.
func (r *Readiness) Wait(ctx context.Context, timeout time.Duration) (domain.Identity, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.done:
		if r.err != nil {
			return domain.Identity{}, r.err
		}
		if r.id.UID == "" {
			return domain.Identity{}, domain.ErrNoAuthenticatedUser
		}
		return r.id, nil
	case <-timer.C:
		return domain.Identity{}, domain.ErrNoAuthenticatedUser
	case <-ctx.Done():
		return domain.Identity{}, ctx.Err()
	}
}
