// Package environment tracks the execution namespaces that announce
// themselves and decides which of them may run jobs for a chain.
package environment

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/operator-service/internal/apperrors"
	"github.com/kiranshivaraju/operator-service/internal/cache"
	"github.com/kiranshivaraju/operator-service/internal/observability"
	"github.com/kiranshivaraju/operator-service/pkg/models"
)

const maxAnnounceLimit = 100

// Store is the subset of store.Store the registry needs.
type Store interface {
	ListEnvironments(ctx context.Context, chainID *int64) ([]*models.Environment, error)
	EnvironmentExists(ctx context.Context, namespace string, chainID *int64) (bool, error)
	Announce(ctx context.Context, namespace string, status models.EnvironmentStatus, limit int) ([]string, error)
}

// Cache is the subset of cache.Cache used to memoize listings.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Registry answers eligibility questions and records heartbeats.
type Registry struct {
	store        Store
	defaultLimit int

	cache    Cache
	cacheTTL time.Duration
	metrics  *observability.Metrics
}

// NewRegistry creates a Registry. defaultLimit caps the number of job ids
// returned by Announce when the caller does not ask for a specific amount.
func NewRegistry(s Store, defaultLimit int) *Registry {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &Registry{store: s, defaultLimit: defaultLimit}
}

// WithCache memoizes List results for ttl. Eligibility checks always read
// the store.
func (r *Registry) WithCache(c Cache, ttl time.Duration) *Registry {
	r.cache = c
	r.cacheTTL = ttl
	return r
}

// WithMetrics counts heartbeats per namespace.
func (r *Registry) WithMetrics(m *observability.Metrics) *Registry {
	r.metrics = m
	return r
}

// Eligible reports whether namespace is registered and accepts chainID.
func (r *Registry) Eligible(ctx context.Context, namespace string, chainID *int64) (bool, error) {
	if namespace == "" {
		return false, nil
	}
	ok, err := r.store.EnvironmentExists(ctx, namespace, chainID)
	if err != nil {
		return false, apperrors.Upstream("store.environmentExists", err)
	}
	return ok, nil
}

// List returns the registered environments, restricted to those accepting
// chainID when it is set.
func (r *Registry) List(ctx context.Context, chainID *int64) ([]*models.Environment, error) {
	key := cache.EnvironmentsKey(chainID)
	if r.cache != nil {
		if data, found, err := r.cache.Get(ctx, key); err != nil {
			slog.Warn("environment cache read failed", "key", key, "error", err)
		} else if found {
			var envs []*models.Environment
			if err := json.Unmarshal(data, &envs); err == nil {
				return envs, nil
			}
		}
	}

	envs, err := r.store.ListEnvironments(ctx, chainID)
	if err != nil {
		return nil, apperrors.Upstream("store.listEnvironments", err)
	}
	if envs == nil {
		envs = []*models.Environment{}
	}

	if r.cache != nil {
		if data, err := json.Marshal(envs); err == nil {
			if err := r.cache.Set(ctx, key, data, r.cacheTTL); err != nil {
				slog.Warn("environment cache write failed", "key", key, "error", err)
			}
		}
	}
	return envs, nil
}

// Announce records a heartbeat for namespace and returns up to limit job ids
// waiting to be picked up there.
func (r *Registry) Announce(ctx context.Context, namespace string, status models.EnvironmentStatus, limit int) ([]string, error) {
	if namespace == "" {
		return nil, apperrors.Validation("environment", "\"environment\" is required in the call to announce")
	}
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if limit > maxAnnounceLimit {
		limit = maxAnnounceLimit
	}

	ids, err := r.store.Announce(ctx, namespace, status, limit)
	if err != nil {
		return nil, apperrors.Upstream("store.announce", err)
	}
	if r.cache != nil {
		if _, err := r.cache.DeletePrefix(ctx, cache.EnvironmentsPrefix); err != nil {
			slog.Warn("environment cache invalidation failed", "error", err)
		}
	}
	if r.metrics != nil {
		r.metrics.RecordAnnounce(ctx, namespace)
	}
	slog.Debug("environment announced", "namespace", namespace, "pending_jobs", len(ids))
	return ids, nil
}
