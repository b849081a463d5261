package memory

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// RoleCache is an in-process role-set cache for the memory store driver.
// Entries expire after ttl. Generations are kept outside go-cache so they
// survive expiry.
type RoleCache struct {
	mu   sync.Mutex
	c    *gocache.Cache
	gens map[string]uint64
}

func NewRoleCache(ttl time.Duration) *RoleCache {
	return &RoleCache{c: gocache.New(ttl, time.Minute), gens: make(map[string]uint64)}
}

func (r *RoleCache) Get(_ context.Context, userID string) ([]string, bool, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gen := r.gens[userID]
	v, ok := r.c.Get(userID)
	if !ok {
		return nil, false, gen, nil
	}
	roles, _ := v.([]string)
	return append([]string(nil), roles...), true, gen, nil
}

// Set drops the write when userID was invalidated after gen was read.
func (r *RoleCache) Set(_ context.Context, userID string, roles []string, gen uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gens[userID] != gen {
		return nil
	}
	r.c.SetDefault(userID, append([]string(nil), roles...))
	return nil
}

func (r *RoleCache) Invalidate(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gens[userID]++
	r.c.Delete(userID)
	return nil
}
