package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	roleCachePrefix = "rbac:role:"
	noAssignment    = "-"

	defaultLoadTimeout = 5 * time.Second
)

// CachedRoleStore keeps role lookups in Redis. Entries are keyed by a per-identity version
// token that Invalidate replaces, so a lookup that raced with an assignment change can only
// ever populate a version nobody reads again. A missing version key is reseeded with a fresh
// token rather than a counter, so eviction never makes an old entry readable. Entries never
// outlive the assignment they describe. Any Redis failure falls back to the wrapped store.
type CachedRoleStore struct {
	next        ExpiringRoleStore
	client      *redis.Client
	ttl         time.Duration
	loadTimeout time.Duration
	logger      *slog.Logger
	group       singleflight.Group
	obs         CacheObserver
	now         func() time.Time
}

// CacheObserver counts role cache outcomes: hit, miss or error.
type CacheObserver interface {
	RecordRoleCache(result string)
}

type roleLookup struct {
	role  string
	found bool
}

// NewCachedRoleStore wraps next with a Redis cache.
func NewCachedRoleStore(next ExpiringRoleStore, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedRoleStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRoleStore{
		next:        next,
		client:      client,
		ttl:         ttl,
		loadTimeout: defaultLoadTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Observe reports cache outcomes to obs.
func (c *CachedRoleStore) Observe(obs CacheObserver) *CachedRoleStore {
	c.obs = obs
	return c
}

func (c *CachedRoleStore) record(result string) {
	if c.obs != nil {
		c.obs.RecordRoleCache(result)
	}
}

// ActiveRoleAssignment implements RoleStore.
func (c *CachedRoleStore) ActiveRoleAssignment(ctx context.Context, identityID string) (string, bool, error) {
	if c.client == nil || c.ttl <= 0 {
		return c.next.ActiveRoleAssignment(ctx, identityID)
	}
	version, err := c.version(ctx, identityID)
	if err != nil {
		c.logger.Warn("role cache version", slog.String("identity", identityID), slog.Any("error", err))
		c.record("error")
		return c.next.ActiveRoleAssignment(ctx, identityID)
	}
	key := c.entryKey(identityID, version)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		c.record("hit")
		if cached == noAssignment {
			return "", false, nil
		}
		return cached, true, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("role cache read", slog.String("identity", identityID), slog.Any("error", err))
		c.record("error")
		return c.next.ActiveRoleAssignment(ctx, identityID)
	}
	c.record("miss")

	// The shared load must not die with whichever caller started it.
	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		return c.load(loadCtx, identityID, key)
	})
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", false, res.Err
		}
		lookup := res.Val.(roleLookup)
		return lookup.role, lookup.found, nil
	}
}

func (c *CachedRoleStore) load(ctx context.Context, identityID, key string) (roleLookup, error) {
	role, found, until, err := c.next.ActiveRoleAssignmentUntil(ctx, identityID)
	if err != nil {
		return roleLookup{}, err
	}
	value, ttl := noAssignment, c.ttl
	if found {
		value = role
		ttl = c.entryTTL(until)
	}
	if ttl > 0 {
		if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
			c.logger.Warn("role cache write", slog.String("identity", identityID), slog.Any("error", err))
		}
	}
	return roleLookup{role: role, found: found}, nil
}

// entryTTL caps the entry lifetime at the assignment expiry. A non-positive result means the
// lookup must not be cached.
func (c *CachedRoleStore) entryTTL(until time.Time) time.Duration {
	if until.IsZero() {
		return c.ttl
	}
	left := until.Sub(c.now())
	if left < time.Millisecond {
		return 0
	}
	return min(c.ttl, left)
}

// Invalidate drops every cached lookup for identityID. Call it after each assignment change.
func (c *CachedRoleStore) Invalidate(ctx context.Context, identityID string) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Set(ctx, c.versionKey(identityID), uuid.NewString(), c.versionTTL()).Err(); err != nil {
		return fmt.Errorf("auth: invalidate role cache: %w", err)
	}
	return nil
}

func (c *CachedRoleStore) version(ctx context.Context, identityID string) (string, error) {
	key := c.versionKey(identityID)
	ver, err := c.client.Get(ctx, key).Result()
	if !errors.Is(err, redis.Nil) {
		return ver, err
	}
	token := uuid.NewString()
	seeded, err := c.client.SetNX(ctx, key, token, c.versionTTL()).Result()
	if err != nil {
		return "", err
	}
	if seeded {
		return token, nil
	}
	return c.client.Get(ctx, key).Result()
}

// versionTTL outlives every entry written under the version.
func (c *CachedRoleStore) versionTTL() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	return 2*c.ttl + c.loadTimeout
}

func (c *CachedRoleStore) versionKey(identityID string) string {
	return roleCachePrefix + strings.ToLower(identityID) + ":ver"
}

func (c *CachedRoleStore) entryKey(identityID, version string) string {
	return fmt.Sprintf("%s%s:%s", roleCachePrefix, strings.ToLower(identityID), version)
}

var _ RoleStore = (*CachedRoleStore)(nil)
