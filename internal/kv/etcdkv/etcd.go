// Package etcdkv implements the kv contract on an etcd cluster.
//
// Layout under the namespace:
//
//	<ns>/buckets/<name>         bucket marker, value is the creation time
//	<ns>/data/<name>/<key>      entry
//
// Bucket creation is a compare-and-put on the marker's create revision.
package etcdkv

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/rcliao/memhive/internal/kv"
)

// Config holds the etcd connection parameters.
type Config struct {
	Endpoints   []string
	Namespace   string
	Username    string
	Password    string
	DialTimeout time.Duration
	TLS         *tls.Config
}

// Store implements kv.Store using etcd clientv3.
type Store struct {
	client    *clientv3.Client
	namespace string
}

// Open connects to etcd and verifies the cluster answers a read.
func Open(cfg Config) (*Store, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "memhive"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
		TLS:         cfg.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return New(cli, cfg.Namespace), nil
}

// New wraps an existing client. Closing the store closes cli.
func New(cli *clientv3.Client, namespace string) *Store {
	return &Store{client: cli, namespace: strings.TrimSuffix(namespace, "/")}
}

func (s *Store) markerKey(name string) string {
	return s.namespace + "/buckets/" + name
}

func (s *Store) dataPrefix(name string) string {
	return s.namespace + "/data/" + name + "/"
}

func (s *Store) Bucket(ctx context.Context, name string) (kv.Bucket, error) {
	resp, err := s.client.Get(ctx, s.markerKey(name), clientv3.WithCountOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to look up bucket %s: %w", name, err)
	}
	if resp.Count == 0 {
		return nil, kv.ErrBucketNotFound
	}
	return s.bucket(name), nil
}

func (s *Store) CreateBucket(ctx context.Context, name string) (kv.Bucket, error) {
	marker := s.markerKey(name)
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(marker), "=", 0)).
		Then(clientv3.OpPut(marker, time.Now().UTC().Format(time.RFC3339))).
		Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %s: %w", name, err)
	}
	if !resp.Succeeded {
		return nil, kv.ErrBucketExists
	}
	return s.bucket(name), nil
}

func (s *Store) bucket(name string) *bucket {
	return &bucket{client: s.client, name: name, prefix: s.dataPrefix(name)}
}

// Close closes the etcd client.
func (s *Store) Close() error {
	return s.client.Close()
}

type bucket struct {
	client *clientv3.Client
	name   string
	prefix string
}

func (b *bucket) Name() string { return b.name }

func (b *bucket) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.Get(ctx, b.prefix+key)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", b.name, key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, kv.ErrKeyNotFound
	}
	return resp.Kvs[0].Value, nil
}

func (b *bucket) Put(ctx context.Context, key string, value []byte) error {
	if _, err := b.client.Put(ctx, b.prefix+key, string(value)); err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", b.name, key, err)
	}
	return nil
}

func (b *bucket) Delete(ctx context.Context, key string) (bool, error) {
	resp, err := b.client.Delete(ctx, b.prefix+key)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", b.name, key, err)
	}
	return resp.Deleted > 0, nil
}

func (b *bucket) Keys(ctx context.Context, prefix string) ([]string, error) {
	resp, err := b.client.Get(ctx, b.prefix+prefix,
		clientv3.WithPrefix(),
		clientv3.WithKeysOnly(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s/%s*: %w", b.name, prefix, err)
	}
	keys := make([]string, 0, len(resp.Kvs))
	for _, item := range resp.Kvs {
		keys = append(keys, strings.TrimPrefix(string(item.Key), b.prefix))
	}
	return keys, nil
}
