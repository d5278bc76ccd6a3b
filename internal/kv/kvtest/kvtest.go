// Package kvtest holds a conformance suite every kv backend must pass.
package kvtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memhive/internal/kv"
)

// Run exercises store against the kv contract. newStore must return a store
// with no buckets.
func Run(t *testing.T, newStore func(t *testing.T) kv.Store) {
	t.Run("missing bucket", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Bucket(context.Background(), "nope")
		assert.ErrorIs(t, err, kv.ErrBucketNotFound)
	})

	t.Run("create then open", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b, err := s.CreateBucket(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, "b1", b.Name())

		_, err = s.CreateBucket(ctx, "b1")
		assert.ErrorIs(t, err, kv.ErrBucketExists)

		again, err := s.Bucket(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, "b1", again.Name())
	})

	t.Run("concurrent create", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		var mu sync.Mutex
		created, exists := 0, 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.CreateBucket(ctx, "race")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created++
				case assert.ErrorIs(t, err, kv.ErrBucketExists):
					exists++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)
		assert.Equal(t, 7, exists)
	})

	t.Run("get put delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		b, err := s.CreateBucket(ctx, "data")
		require.NoError(t, err)

		_, err = b.Get(ctx, "k")
		assert.ErrorIs(t, err, kv.ErrKeyNotFound)

		require.NoError(t, b.Put(ctx, "k", []byte("v1")))
		require.NoError(t, b.Put(ctx, "k", []byte("v2")))
		got, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got))

		existed, err := b.Delete(ctx, "k")
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = b.Delete(ctx, "k")
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("keys by prefix", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		b, err := s.CreateBucket(ctx, "list")
		require.NoError(t, err)
		other, err := s.CreateBucket(ctx, "other")
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			require.NoError(t, b.Put(ctx, fmt.Sprintf("agents/a1/recent/%d", i), []byte("x")))
		}
		require.NoError(t, b.Put(ctx, "agents/a10/recent/9", []byte("x")))
		require.NoError(t, b.Put(ctx, "decisions/1", []byte("x")))
		require.NoError(t, other.Put(ctx, "agents/a1/recent/7", []byte("x")))

		keys, err := b.Keys(ctx, "agents/a1/")
		require.NoError(t, err)
		assert.Equal(t, []string{"agents/a1/recent/0", "agents/a1/recent/1", "agents/a1/recent/2"}, keys)

		all, err := b.Keys(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 5)

		none, err := b.Keys(ctx, "architecture/")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
