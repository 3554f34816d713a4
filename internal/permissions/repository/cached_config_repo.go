package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/calybase/calybase-backend/internal/logger"
	"github.com/calybase/calybase-backend/internal/metrics"
	"github.com/calybase/calybase-backend/internal/permissions/domain"
)

const configCacheKey = "calybase:system-config"

// CachedConfigRepository serves the system configuration from Redis and
// falls back to the underlying store on a miss. Cache failures never fail
// a read; the store is authoritative.
type CachedConfigRepository struct {
	store   ConfigStore
	client  *redis.Client
	ttl     time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewCachedConfigRepository(store ConfigStore, client *redis.Client, ttl time.Duration, log *logger.Logger, m *metrics.Metrics) *CachedConfigRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedConfigRepository{
		store:   store,
		client:  client,
		ttl:     ttl,
		log:     log.WithComponent("config_cache"),
		metrics: m,
	}
}

func (r *CachedConfigRepository) Get(ctx context.Context) (*domain.SystemConfig, error) {
	data, err := r.client.Get(ctx, configCacheKey).Bytes()
	switch {
	case err == nil:
		var cfg domain.SystemConfig
		uerr := msgpack.Unmarshal(data, &cfg)
		if uerr == nil {
			r.metrics.ConfigCache("hit")
			return &cfg, nil
		}
		r.log.Warnf("discarding undecodable cached config: %v", uerr)
	case errors.Is(err, redis.Nil):
	default:
		r.log.Warnf("config cache read failed: %v", err)
	}

	r.metrics.ConfigCache("miss")
	cfg, err := r.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := msgpack.Marshal(cfg); err != nil {
		r.log.Warnf("encode config for cache: %v", err)
	} else if err := r.client.Set(ctx, configCacheKey, data, r.ttl).Err(); err != nil {
		r.log.Warnf("config cache write failed: %v", err)
	}

	return cfg, nil
}

// Save writes through to the store and drops the cached copy. Once the
// store has the document the save succeeded; a stale cached copy expires
// with the TTL.
func (r *CachedConfigRepository) Save(ctx context.Context, cfg *domain.SystemConfig) error {
	if err := r.store.Save(ctx, cfg); err != nil {
		return err
	}
	if err := r.Invalidate(ctx); err != nil {
		r.log.Warnf("system config saved but cache kept for up to %s: %v", r.ttl, err)
	}
	return nil
}

func (r *CachedConfigRepository) Invalidate(ctx context.Context) error {
	if err := r.client.Del(ctx, configCacheKey).Err(); err != nil {
		return fmt.Errorf("invalidate config cache: %w", err)
	}
	return nil
}
