package router

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memhive/internal/kv"
	"github.com/rcliao/memhive/internal/model"
)

// countingStore records how often buckets are opened and created.
type countingStore struct {
	kv.Store
	opens   atomic.Int32
	creates atomic.Int32
}

func (s *countingStore) Bucket(ctx context.Context, name string) (kv.Bucket, error) {
	s.opens.Add(1)
	return s.Store.Bucket(ctx, name)
}

func (s *countingStore) CreateBucket(ctx context.Context, name string) (kv.Bucket, error) {
	s.creates.Add(1)
	return s.Store.CreateBucket(ctx, name)
}

// racingStore makes every CreateBucket lose a race: the bucket appears just
// before the create attempt.
type racingStore struct {
	*kv.MemoryStore
}

func (s racingStore) CreateBucket(ctx context.Context, name string) (kv.Bucket, error) {
	_, _ = s.MemoryStore.CreateBucket(ctx, name)
	return s.MemoryStore.CreateBucket(ctx, name)
}

func newMemory(id string, scope model.Scope, cat model.Category) *model.Memory {
	now := time.Now().UTC()
	return &model.Memory{
		ID: id, AgentID: "a1", ProjectID: "p1",
		Scope: scope, Category: cat, Content: "content " + id,
		CreatedAt: now, UpdatedAt: now, Version: 1,
	}
}

func TestEnsureLocationIdempotent(t *testing.T) {
	store := &countingStore{Store: kv.NewMemoryStore()}
	r := New(store, nil)
	ctx := context.Background()

	loc1, err := r.EnsureLocation(ctx, model.ScopePrivate, "p1", "a1")
	require.NoError(t, err)
	loc2, err := r.EnsureLocation(ctx, model.ScopeTeam, "p1", "a1")
	require.NoError(t, err)

	assert.Equal(t, loc1, loc2)
	assert.EqualValues(t, 1, store.creates.Load(), "memo should skip the second provisioning")
}

func TestEnsureLocationConcurrent(t *testing.T) {
	store := &countingStore{Store: kv.NewMemoryStore()}
	r := New(store, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = r.EnsureLocation(ctx, model.ScopePublic, "", "")
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	// Exactly one usable bucket exists.
	_, err := store.Store.CreateBucket(ctx, "memhive-global")
	assert.ErrorIs(t, err, kv.ErrBucketExists)
}

func TestEnsureLocationSeparateRouters(t *testing.T) {
	// Two processes sharing one store both succeed.
	store := kv.NewMemoryStore()
	ctx := context.Background()
	a, b := New(store, nil), New(store, nil)

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); _, errA = a.EnsureLocation(ctx, model.ScopePersonal, "", "a1") }()
	go func() { defer wg.Done(); _, errB = b.EnsureLocation(ctx, model.ScopePersonal, "", "a1") }()
	wg.Wait()
	require.NoError(t, errA)
	require.NoError(t, errB)
}

func TestEnsureLocationLostCreateRace(t *testing.T) {
	r := New(racingStore{kv.NewMemoryStore()}, nil)
	_, err := r.EnsureLocation(context.Background(), model.ScopePrivate, "p1", "a1")
	require.NoError(t, err)
}

// gatedStore blocks bucket lookups until release is closed, then fails if the
// lookup's own context was cancelled in the meantime.
type gatedStore struct {
	*kv.MemoryStore
	entered chan struct{}
	release chan struct{}
	opens   atomic.Int32
}

func (s *gatedStore) Bucket(ctx context.Context, name string) (kv.Bucket, error) {
	if s.opens.Add(1) == 1 {
		close(s.entered)
	}
	<-s.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.MemoryStore.Bucket(ctx, name)
}

func TestEnsureSurvivesCancelledWaiter(t *testing.T) {
	store := &gatedStore{
		MemoryStore: kv.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	r := New(store, nil)
	loc, err := model.LocationFor(model.ScopePublic, "", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- r.Ensure(ctx, loc) }()

	<-store.entered
	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(store.release)
	require.NoError(t, r.Ensure(context.Background(), loc))
	assert.EqualValues(t, 1, store.opens.Load(), "provisioning should not restart after a waiter cancels")
}

func TestNotInitialized(t *testing.T) {
	r := New(kv.NewMemoryStore(), nil)
	ctx := context.Background()
	loc, _ := model.LocationFor(model.ScopePrivate, "p1", "a1")

	_, err := r.Read(ctx, loc, "agents/a1/recent/x")
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = r.Write(ctx, newMemory("x", model.ScopePrivate, model.CategoryRecent), 0)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = r.ListByPrefix(ctx, loc, "agents/")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestWriteReadDelete(t *testing.T) {
	r := New(kv.NewMemoryStore(), nil)
	ctx := context.Background()
	loc, err := r.EnsureLocation(ctx, model.ScopePrivate, "p1", "a1")
	require.NoError(t, err)

	m := newMemory("01", model.ScopePrivate, model.CategoryRecent)
	require.NoError(t, r.Write(ctx, m, model.CategoryRecent.TTLSeconds()))
	require.NotNil(t, m.ExpiresAt, "ttl should be retained on the record")

	got, err := r.Read(ctx, loc, "agents/a1/recent/01")
	require.NoError(t, err)
	assert.Equal(t, "content 01", got.Content)
	assert.WithinDuration(t, m.CreatedAt.Add(24*time.Hour), *got.ExpiresAt, time.Second)

	existed, err := r.Delete(ctx, loc, m.Key())
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = r.Read(ctx, loc, m.Key())
	assert.ErrorIs(t, err, ErrNotFound)

	existed, err = r.Delete(ctx, loc, m.Key())
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestListByPrefixSkipsCorruptRecords(t *testing.T) {
	store := kv.NewMemoryStore()
	r := New(store, nil)
	ctx := context.Background()
	loc, err := r.EnsureLocation(ctx, model.ScopePrivate, "p1", "a1")
	require.NoError(t, err)

	for _, id := range []string{"01", "02", "03"} {
		require.NoError(t, r.Write(ctx, newMemory(id, model.ScopePrivate, model.CategoryLongterm), 0))
	}
	b, _ := store.Bucket(ctx, loc.Bucket())
	require.NoError(t, b.Put(ctx, "agents/a1/longterm/02x", []byte("{not json")))

	got, err := r.ListByPrefix(ctx, loc, model.CategoryPrefix("a1", model.CategoryLongterm, model.ScopePrivate))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"01", "02", "03"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestPrivateAndTeamShareBucketWithoutCollision(t *testing.T) {
	r := New(kv.NewMemoryStore(), nil)
	ctx := context.Background()
	loc, err := r.EnsureLocation(ctx, model.ScopeTeam, "p1", "a1")
	require.NoError(t, err)

	require.NoError(t, r.Write(ctx, newMemory("01", model.ScopePrivate, model.CategoryRecent), 0))
	require.NoError(t, r.Write(ctx, newMemory("02", model.ScopeTeam, model.CategoryDecisions), 0))

	team, err := r.ListByPrefix(ctx, loc, model.CategoryPrefix("a1", model.CategoryDecisions, model.ScopeTeam))
	require.NoError(t, err)
	require.Len(t, team, 1)
	assert.Equal(t, "02", team[0].ID)

	priv, err := r.ListByPrefix(ctx, loc, model.AgentPrefix("a1"))
	require.NoError(t, err)
	require.Len(t, priv, 1)
	assert.Equal(t, "01", priv[0].ID)
}

func TestCount(t *testing.T) {
	r := New(kv.NewMemoryStore(), nil)
	ctx := context.Background()
	loc, err := r.EnsureLocation(ctx, model.ScopePrivate, "p1", "a1")
	require.NoError(t, err)

	for _, id := range []string{"01", "02"} {
		require.NoError(t, r.Write(ctx, newMemory(id, model.ScopePrivate, model.CategoryCore), 0))
	}
	require.NoError(t, r.Write(ctx, newMemory("03", model.ScopePrivate, model.CategoryRecent), 0))

	n, err := r.Count(ctx, loc, model.CategoryPrefix("a1", model.CategoryCore, model.ScopePrivate))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
