package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRoleCacheTTL = 5 * time.Minute

// errStaleGeneration aborts a fill that lost the race with Invalidate.
var errStaleGeneration = errors.New("role cache generation changed")

// RoleCache stores each identity's role set as a JSON array next to a
// generation counter bumped by every invalidation. Generation keys carry no
// TTL so a counter never resets under a pending fill.
//
// Key format:
//
//	roles:<user_id>      JSON role set, expires after ttl
//	roles:gen:<user_id>  invalidation counter
type RoleCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRoleCache wraps client; ttl <= 0 uses defaultRoleCacheTTL.
func NewRoleCache(client *redis.Client, ttl time.Duration) *RoleCache {
	if ttl <= 0 {
		ttl = defaultRoleCacheTTL
	}
	return &RoleCache{client: client, ttl: ttl}
}

// Get returns the cached role set, ok=false on a miss, and the generation
// to hand back to Set.
func (c *RoleCache) Get(ctx context.Context, userID string) ([]string, bool, uint64, error) {
	vals, err := c.client.MGet(ctx, entryKey(userID), genKey(userID)).Result()
	if err != nil {
		return nil, false, 0, fmt.Errorf("role cache get: %w", err)
	}
	if len(vals) != 2 {
		return nil, false, 0, fmt.Errorf("role cache get: %d values for 2 keys", len(vals))
	}

	gen, err := parseGeneration(vals[1])
	if err != nil {
		return nil, false, 0, err
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, false, gen, nil
	}

	var roles []string
	if err := json.Unmarshal([]byte(raw), &roles); err != nil {
		return nil, false, 0, fmt.Errorf("role cache decode: %w", err)
	}
	return roles, true, gen, nil
}

// Set writes roles under WATCH on the generation key. The write is skipped
// silently when the generation moved past gen, before or during the
// transaction.
func (c *RoleCache) Set(ctx context.Context, userID string, roles []string, gen uint64) error {
	if roles == nil {
		roles = []string{}
	}
	raw, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("role cache encode: %w", err)
	}

	gk := genKey(userID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, entryKey(userID), raw, c.ttl)
			return nil
		})
		return err
	}, gk)

	switch {
	case err == nil, errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		return nil
	default:
		return fmt.Errorf("role cache set: %w", err)
	}
}

// Invalidate bumps the generation and drops the entry in one transaction.
func (c *RoleCache) Invalidate(ctx context.Context, userID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(userID))
		pipe.Del(ctx, entryKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("role cache invalidate: %w", err)
	}
	return nil
}

func entryKey(userID string) string { return "roles:" + userID }

func genKey(userID string) string { return "roles:gen:" + userID }

// parseGeneration reads an MGET value; a missing key is generation 0.
func parseGeneration(v any) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("role cache generation: unexpected type %T", v)
	}
	gen, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("role cache generation: %w", err)
	}
	return gen, nil
}
