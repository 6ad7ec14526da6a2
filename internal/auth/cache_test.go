package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mutableRoles struct {
	mu    sync.Mutex
	role  string
	found bool
	until time.Time
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (m *mutableRoles) set(role string, found bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.role, m.found, m.until = role, found, time.Time{}
}

func (m *mutableRoles) ActiveRoleAssignment(ctx context.Context, identityID string) (string, bool, error) {
	role, found, _, err := m.ActiveRoleAssignmentUntil(ctx, identityID)
	return role, found, err
}

func (m *mutableRoles) ActiveRoleAssignmentUntil(ctx context.Context, identityID string) (string, bool, time.Time, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if err := ctx.Err(); err != nil {
		return "", false, time.Time{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role, m.found, m.until, m.err
}

func newCachedStore(t *testing.T, next ExpiringRoleStore) (*CachedRoleStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewCachedRoleStore(next, client, time.Minute, nil), mr
}

func TestCachedRoleStoreServesFromCache(t *testing.T) {
	next := &mutableRoles{role: "member", found: true}
	store, _ := newCachedStore(t, next)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		role, found, err := store.ActiveRoleAssignment(ctx, testIdentity)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "member", role)
	}
	require.EqualValues(t, 1, next.calls.Load())
}

func TestCachedRoleStoreCachesMissingAssignment(t *testing.T) {
	next := &mutableRoles{}
	store, _ := newCachedStore(t, next)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, found, err := store.ActiveRoleAssignment(ctx, testIdentity)
		require.NoError(t, err)
		require.False(t, found)
	}
	require.EqualValues(t, 1, next.calls.Load())
}

func TestCachedRoleStoreInvalidateDropsElevatedRole(t *testing.T) {
	next := &mutableRoles{role: "admin", found: true}
	store, _ := newCachedStore(t, next)
	ctx := context.Background()

	role, _, err := store.ActiveRoleAssignment(ctx, testIdentity)
	require.NoError(t, err)
	require.Equal(t, "admin", role)

	next.set("member", true)
	require.NoError(t, store.Invalidate(ctx, testIdentity))

	role, _, err = store.ActiveRoleAssignment(ctx, testIdentity)
	require.NoError(t, err)
	require.Equal(t, "member", role)
}

func TestCachedRoleStoreStaleWriteIsNeverRead(t *testing.T) {
	next := &mutableRoles{role: "admin", found: true}
	store, mr := newCachedStore(t, next)
	ctx := context.Background()

	before, err := store.version(ctx, testIdentity)
	require.NoError(t, err)
	next.set("guest", true)
	require.NoError(t, store.Invalidate(ctx, testIdentity))
	// A lookup that started before the demotion lands its result late.
	require.NoError(t, mr.Set(store.entryKey(testIdentity, before), "admin"))

	role, _, err := store.ActiveRoleAssignment(ctx, testIdentity)
	require.NoError(t, err)
	require.Equal(t, "guest", role)
}

func TestCachedRoleStoreEntryEndsWithAssignment(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := &mutableRoles{role: "admin", found: true, until: now.Add(200 * time.Millisecond)}
	store, mr := newCachedStore(t, next)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	role, found, err := store.ActiveRoleAssignment(ctx, testIdentity)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "admin", role)

	version, err := store.version(ctx, testIdentity)
	require.NoError(t, err)
	ttl := mr.TTL(store.entryKey(testIdentity, version))
	require.Positive(t, ttl)
	require.LessOrEqual(t, ttl, 200*time.Millisecond)

	// The grant lapses; no invalidation happens.
	next.set("", false)
	mr.FastForward(300 * time.Millisecond)

	_, found, err = store.ActiveRoleAssignment(ctx, testIdentity)
	require.NoError(t, err)
	require.False(t, found, "lapsed admin grant must not be served from cache")
}

func TestCachedRoleStoreSkipsLapsedAssignment(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := &mutableRoles{role: "admin", found: true, until: now.Add(-time.Second)}
	store, _ := newCachedStore(t, next)
	store.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, _, err := store.ActiveRoleAssignment(context.Background(), testIdentity)
		require.NoError(t, err)
	}
	require.EqualValues(t, 2, next.calls.Load())
}

func TestCachedRoleStoreEvictedVersionStartsFresh(t *testing.T) {
	next := &mutableRoles{role: "admin", found: true}
	store, mr := newCachedStore(t, next)
	ctx := context.Background()

	_, _, err := store.ActiveRoleAssignment(ctx, testIdentity)
	require.NoError(t, err)
	first, err := store.version(ctx, testIdentity)
	require.NoError(t, err)
	require.Positive(t, mr.TTL(store.versionKey(testIdentity)))

	next.set("member", true)
	require.NoError(t, store.Invalidate(ctx, testIdentity))
	require.Positive(t, mr.TTL(store.versionKey(testIdentity)))

	// Eviction of the version key must not resurrect the admin entry.
	mr.Del(store.versionKey(testIdentity))
	role, _, err := store.ActiveRoleAssignment(ctx, testIdentity)
	require.NoError(t, err)
	require.Equal(t, "member", role)

	reseeded, err := store.version(ctx, testIdentity)
	require.NoError(t, err)
	require.NotEqual(t, first, reseeded)
}

func TestCachedRoleStoreLeaderCancellationSparesFollowers(t *testing.T) {
	next := &mutableRoles{role: "member", found: true, delay: 200 * time.Millisecond}
	store, _ := newCachedStore(t, next)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := store.ActiveRoleAssignment(leaderCtx, testIdentity)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		role string
		err  error
	}
	follower := make(chan result, 1)
	go func() {
		role, _, err := store.ActiveRoleAssignment(context.Background(), testIdentity)
		follower <- result{role: role, err: err}
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	got := <-follower
	require.NoError(t, got.err)
	require.Equal(t, "member", got.role)
}

func TestCachedRoleStoreFallsBackWhenRedisDown(t *testing.T) {
	next := &mutableRoles{role: "team", found: true}
	store, mr := newCachedStore(t, next)
	mr.Close()

	role, found, err := store.ActiveRoleAssignment(context.Background(), testIdentity)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "team", role)
	require.Error(t, store.Invalidate(context.Background(), testIdentity))
}

func TestCachedRoleStorePropagatesStoreErrors(t *testing.T) {
	next := &mutableRoles{err: errors.New("pg down")}
	store, mr := newCachedStore(t, next)

	_, _, err := store.ActiveRoleAssignment(context.Background(), testIdentity)
	require.Error(t, err)
	require.Equal(t, []string{store.versionKey(testIdentity)}, mr.Keys())
}

func TestCachedRoleStoreCollapsesConcurrentMisses(t *testing.T) {
	next := &mutableRoles{role: "member", found: true, delay: 100 * time.Millisecond}
	store, _ := newCachedStore(t, next)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			role, _, err := store.ActiveRoleAssignment(context.Background(), testIdentity)
			assert.NoError(t, err)
			assert.Equal(t, "member", role)
		}()
	}
	wg.Wait()
	require.Less(t, next.calls.Load(), int32(8))
}

func TestCachedRoleStoreDisabled(t *testing.T) {
	next := &mutableRoles{role: "member", found: true}
	store := NewCachedRoleStore(next, nil, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, _, err := store.ActiveRoleAssignment(context.Background(), testIdentity)
		require.NoError(t, err)
	}
	require.EqualValues(t, 2, next.calls.Load())
	require.NoError(t, store.Invalidate(context.Background(), testIdentity))
}

type outcomeCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *outcomeCounter) RecordRoleCache(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[result]++
}

func TestCachedRoleStoreReportsOutcomes(t *testing.T) {
	next := &mutableRoles{role: "team", found: true}
	store, mr := newCachedStore(t, next)
	obs := &outcomeCounter{}
	store.Observe(obs)

	for i := 0; i < 3; i++ {
		_, _, err := store.ActiveRoleAssignment(context.Background(), testIdentity)
		require.NoError(t, err)
	}
	mr.Close()
	_, _, err := store.ActiveRoleAssignment(context.Background(), testIdentity)
	require.NoError(t, err)

	require.Equal(t, map[string]int{"miss": 1, "hit": 2, "error": 1}, obs.counts)
}
