// Package router maps memory scopes onto kv buckets and provides uniform
// record-level access to each location.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rcliao/memhive/internal/kv"
	"github.com/rcliao/memhive/internal/model"
)

var (
	// ErrNotInitialized is returned when a location is accessed before
	// EnsureLocation provisioned it in this process.
	ErrNotInitialized = errors.New("router: location not initialized")

	// ErrNotFound is returned by Read for a missing key.
	ErrNotFound = errors.New("router: memory not found")
)

// fetchConcurrency bounds the per-key reads issued by ListByPrefix.
const fetchConcurrency = 16

// Router resolves scopes to locations and provisions them lazily.
//
// The only in-process state is the memo of provisioned buckets. Two
// goroutines racing to provision the same location share one attempt, and a
// second process racing this one is absorbed by the kv.ErrBucketExists retry.
type Router struct {
	store  kv.Store
	logger *slog.Logger

	buckets sync.Map // bucket name -> kv.Bucket
	group   singleflight.Group
}

// New creates a router over store. A nil logger uses slog.Default().
func New(store kv.Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{store: store, logger: logger}
}

// EnsureLocation provisions the location that holds scope s and returns it.
// It is idempotent and safe under concurrent callers.
func (r *Router) EnsureLocation(ctx context.Context, s model.Scope, projectID, agentID string) (model.Location, error) {
	loc, err := model.LocationFor(s, projectID, agentID)
	if err != nil {
		return model.Location{}, err
	}
	if err := r.Ensure(ctx, loc); err != nil {
		return model.Location{}, err
	}
	return loc, nil
}

// Ensure provisions loc: try-get, create on not-found, re-get on a lost
// create race.
func (r *Router) Ensure(ctx context.Context, loc model.Location) error {
	name := loc.Bucket()
	if _, ok := r.buckets.Load(name); ok {
		return nil
	}

	// The flight outlives any one waiter; each waiter still honors its own ctx.
	flight := context.WithoutCancel(ctx)
	ch := r.group.DoChan(name, func() (interface{}, error) {
		if b, ok := r.buckets.Load(name); ok {
			return b, nil
		}
		b, err := r.provision(flight, name)
		if err != nil {
			return nil, err
		}
		r.buckets.Store(name, b)
		return b, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) provision(ctx context.Context, name string) (kv.Bucket, error) {
	b, err := r.store.Bucket(ctx, name)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, kv.ErrBucketNotFound) {
		return nil, fmt.Errorf("open location %s: %w", name, err)
	}

	b, err = r.store.CreateBucket(ctx, name)
	if err == nil {
		r.logger.Debug("location created", "bucket", name)
		return b, nil
	}
	if !errors.Is(err, kv.ErrBucketExists) {
		return nil, fmt.Errorf("create location %s: %w", name, err)
	}

	// Another caller won the race; its bucket is ours too.
	b, err = r.store.Bucket(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reopen location %s: %w", name, err)
	}
	return b, nil
}

func (r *Router) bucket(loc model.Location) (kv.Bucket, error) {
	b, ok := r.buckets.Load(loc.Bucket())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, loc.Bucket())
	}
	return b.(kv.Bucket), nil
}

// Write stores mem at its key inside the location of its scope. The store has
// no per-key expiry, so ttlSeconds only fills in ExpiresAt when the record
// lacks one; removal is the cleanup pass's job.
func (r *Router) Write(ctx context.Context, mem *model.Memory, ttlSeconds int) error {
	loc, err := model.LocationFor(mem.Scope, mem.ProjectID, mem.AgentID)
	if err != nil {
		return err
	}
	b, err := r.bucket(loc)
	if err != nil {
		return err
	}
	if ttlSeconds > 0 && mem.ExpiresAt == nil {
		mem.ApplyTTL()
	}

	data, err := json.Marshal(mem)
	if err != nil {
		return fmt.Errorf("encode memory %s: %w", mem.ID, err)
	}
	if err := b.Put(ctx, mem.Key(), data); err != nil {
		return fmt.Errorf("write %s: %w", mem.Key(), err)
	}
	return nil
}

// Read fetches and decodes the memory at key.
func (r *Router) Read(ctx context.Context, loc model.Location, key string) (*model.Memory, error) {
	b, err := r.bucket(loc)
	if err != nil {
		return nil, err
	}
	return r.read(ctx, b, key)
}

func (r *Router) read(ctx context.Context, b kv.Bucket, key string) (*model.Memory, error) {
	data, err := b.Get(ctx, key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var m model.Memory
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &m, nil
}

// Exists reports whether key is present in loc.
func (r *Router) Exists(ctx context.Context, loc model.Location, key string) (bool, error) {
	b, err := r.bucket(loc)
	if err != nil {
		return false, err
	}
	_, err = b.Get(ctx, key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	return true, nil
}

// Delete removes key from loc and reports whether it existed.
func (r *Router) Delete(ctx context.Context, loc model.Location, key string) (bool, error) {
	b, err := r.bucket(loc)
	if err != nil {
		return false, err
	}
	existed, err := b.Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return existed, nil
}

// Count returns the number of keys under prefix without fetching them.
func (r *Router) Count(ctx context.Context, loc model.Location, prefix string) (int, error) {
	b, err := r.bucket(loc)
	if err != nil {
		return 0, err
	}
	keys, err := b.Keys(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list %s/%s: %w", loc.Bucket(), prefix, err)
	}
	return len(keys), nil
}

// ListByPrefix returns every decodable memory whose key starts with prefix,
// in key order. It lists keys and then fetches each one; records that vanish
// or fail to decode in between are skipped.
func (r *Router) ListByPrefix(ctx context.Context, loc model.Location, prefix string) ([]model.Memory, error) {
	b, err := r.bucket(loc)
	if err != nil {
		return nil, err
	}
	keys, err := b.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", loc.Bucket(), prefix, err)
	}

	fetched := make([]*model.Memory, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			m, err := r.read(gctx, b, key)
			if err != nil {
				r.logger.Debug("skipping unreadable record", "bucket", loc.Bucket(), "key", key, "error", err)
				return nil
			}
			fetched[i] = m
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]model.Memory, 0, len(keys))
	for _, m := range fetched {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, nil
}
