package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/webapi-identity/identity-api/internal/core/domain"
	"github.com/webapi-identity/identity-api/internal/core/ports"
	"github.com/webapi-identity/identity-api/internal/metrics"
)

// RoleCache abstracts the role-set cache (Redis or in-process).
//
// Every entry carries a generation that Invalidate advances. Get reports the
// current generation, hit or miss, and Set stores only when the generation is
// still the one the caller read. A fill that raced with a role change is
// therefore dropped instead of caching the pre-change set.
type RoleCache interface {
	Get(ctx context.Context, userID string) (roles []string, ok bool, gen uint64, err error)
	Set(ctx context.Context, userID string, roles []string, gen uint64) error
	Invalidate(ctx context.Context, userID string) error
}

// noopRoleCache is used when no cache is configured.
type noopRoleCache struct{}

func (noopRoleCache) Get(context.Context, string) ([]string, bool, uint64, error) {
	return nil, false, 0, nil
}
func (noopRoleCache) Set(context.Context, string, []string, uint64) error { return nil }
func (noopRoleCache) Invalidate(context.Context, string) error            { return nil }

// rolesFor reads the role set of identity through cache. Read and write
// faults are logged and bypassed; the store stays the source of truth.
func rolesFor(ctx context.Context, store ports.CredentialStore, cache RoleCache, log zerolog.Logger, identity *domain.Identity) ([]string, error) {
	roles, ok, gen, err := cache.Get(ctx, identity.ID)
	fill := true
	switch {
	case err != nil:
		// The generation is unknown, so a fill could not be guarded.
		fill = false
		metrics.RoleCacheLookupsTotal.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("user_id", identity.ID).Msg("role cache read failed, using store")
	case ok:
		metrics.RoleCacheLookupsTotal.WithLabelValues("hit").Inc()
		return roles, nil
	default:
		metrics.RoleCacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	roles, err = store.GetRoles(ctx, identity)
	if err != nil {
		return nil, err
	}
	if fill {
		if err := cache.Set(ctx, identity.ID, roles, gen); err != nil {
			log.Warn().Err(err).Str("user_id", identity.ID).Msg("role cache write failed")
		}
	}
	return roles, nil
}
