package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rcliao/memhive/internal/kv"
	"github.com/rcliao/memhive/internal/model"
	"github.com/rcliao/memhive/internal/router"
)

var (
	testNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	alice   = Caller{AgentID: "a1", ProjectID: "p1"}
	bob     = Caller{AgentID: "b2", ProjectID: "p1"}
)

// spyStore counts every bucket lookup and creation.
type spyStore struct {
	kv.Store
	calls atomic.Int32
}

func (s *spyStore) Bucket(ctx context.Context, name string) (kv.Bucket, error) {
	s.calls.Add(1)
	return s.Store.Bucket(ctx, name)
}

func (s *spyStore) CreateBucket(ctx context.Context, name string) (kv.Bucket, error) {
	s.calls.Add(1)
	return s.Store.CreateBucket(ctx, name)
}

// noDeleteStore hands out buckets whose Delete always fails.
type noDeleteStore struct {
	*kv.MemoryStore
}

func (s noDeleteStore) Bucket(ctx context.Context, name string) (kv.Bucket, error) {
	b, err := s.MemoryStore.Bucket(ctx, name)
	if err != nil {
		return nil, err
	}
	return noDeleteBucket{b}, nil
}

func (s noDeleteStore) CreateBucket(ctx context.Context, name string) (kv.Bucket, error) {
	b, err := s.MemoryStore.CreateBucket(ctx, name)
	if err != nil {
		return nil, err
	}
	return noDeleteBucket{b}, nil
}

type noDeleteBucket struct {
	kv.Bucket
}

func (noDeleteBucket) Delete(context.Context, string) (bool, error) {
	return false, errors.New("delete refused")
}

func newTestEngine(t *testing.T, store kv.Store) *Engine {
	t.Helper()
	if store == nil {
		store = kv.NewMemoryStore()
	}
	return New(router.New(store, nil), Options{Now: func() time.Time { return testNow }})
}

// record builds a memory owned by alice, created at created.
func record(id string, s model.Scope, c model.Category, created time.Time) model.Memory {
	return model.Memory{
		ID: id, AgentID: alice.AgentID, ProjectID: alice.ProjectID,
		Scope: s, Category: c, Content: "content of " + id,
		CreatedAt: created, UpdatedAt: created, Version: 1,
	}
}

// seed writes memories directly through the router, bypassing validation of
// timestamps so tests can place records anywhere in time.
func seed(t *testing.T, e *Engine, ms ...model.Memory) {
	t.Helper()
	ctx := context.Background()
	for i := range ms {
		m := ms[i]
		_, err := e.router.EnsureLocation(ctx, m.Scope, m.ProjectID, m.AgentID)
		require.NoError(t, err)
		require.NoError(t, e.router.Write(ctx, &m, m.Category.TTLSeconds()))
	}
}

func countKeys(t *testing.T, e *Engine, s model.Scope, c model.Category) int {
	t.Helper()
	loc, err := e.router.EnsureLocation(context.Background(), s, alice.ProjectID, alice.AgentID)
	require.NoError(t, err)
	n, err := e.router.Count(context.Background(), loc, model.CategoryPrefix(alice.AgentID, c, s))
	require.NoError(t, err)
	return n
}
