// Package rediskv implements the kv contract on Redis.
//
// Each bucket is a Redis hash at "<prefix>:bucket:<name>"; the set
// "<prefix>:buckets" registers which buckets exist. SADD is atomic, so of two
// racing creators exactly one observes a newly added member.
package rediskv

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rcliao/memhive/internal/kv"
)

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379/0")
	URL string

	// Prefix namespaces every key this store touches. Defaults to "memhive".
	Prefix string

	// Username and Password override credentials from the URL when set.
	Username string
	Password string

	// TLS configuration for secure connections
	TLS *tls.Config

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Store implements kv.Store using go-redis/v9.
type Store struct {
	client *redis.Client
	prefix string
}

// Open creates a Redis-backed store and verifies connectivity.
func Open(opts Options) (*Store, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Prefix == "" {
		opts.Prefix = "memhive"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if opts.Username != "" {
		redisOpts.Username = opts.Username
	}
	if opts.Password != "" {
		redisOpts.Password = opts.Password
	}
	if opts.TLS != nil {
		redisOpts.TLSConfig = opts.TLS
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client, prefix: opts.Prefix}, nil
}

func (s *Store) registryKey() string {
	return formatKeyName(s.prefix, "buckets")
}

func (s *Store) hashKey(name string) string {
	return formatKeyName(s.prefix, "bucket", name)
}

func (s *Store) Bucket(ctx context.Context, name string) (kv.Bucket, error) {
	ok, err := s.client.SIsMember(ctx, s.registryKey(), name).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up bucket %s: %w", name, err)
	}
	if !ok {
		return nil, kv.ErrBucketNotFound
	}
	return &bucket{client: s.client, name: name, key: s.hashKey(name)}, nil
}

func (s *Store) CreateBucket(ctx context.Context, name string) (kv.Bucket, error) {
	added, err := s.client.SAdd(ctx, s.registryKey(), name).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %s: %w", name, err)
	}
	if added == 0 {
		return nil, kv.ErrBucketExists
	}
	return &bucket{client: s.client, name: name, key: s.hashKey(name)}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

type bucket struct {
	client *redis.Client
	name   string
	key    string
}

func (b *bucket) Name() string { return b.name }

func (b *bucket) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.client.HGet(ctx, b.key, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, kv.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", b.name, key, err)
	}
	return v, nil
}

func (b *bucket) Put(ctx context.Context, key string, value []byte) error {
	if err := b.client.HSet(ctx, b.key, key, value).Err(); err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", b.name, key, err)
	}
	return nil
}

func (b *bucket) Delete(ctx context.Context, key string) (bool, error) {
	n, err := b.client.HDel(ctx, b.key, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", b.name, key, err)
	}
	return n > 0, nil
}

// Keys walks the hash with HSCAN and filters by prefix client-side, so that
// glob metacharacters in agent or category names need no escaping.
func (b *bucket) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		fields, next, err := b.client.HScan(ctx, b.key, cursor, "", 256).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", b.name, err)
		}
		// HSCAN replies with alternating field, value pairs.
		for i := 0; i+1 < len(fields); i += 2 {
			if strings.HasPrefix(fields[i], prefix) {
				keys = append(keys, fields[i])
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(keys)
	return dedupe(keys), nil
}

// dedupe drops repeats from a sorted slice; HSCAN may return a field twice.
func dedupe(sorted []string) []string {
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, k := range sorted[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}

func formatKeyName(parts ...string) string {
	return strings.Join(parts, ":")
}
