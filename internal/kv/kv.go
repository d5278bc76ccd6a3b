// Package kv defines the flat bucket/key/value contract the memory engine is
// built on, plus an in-process implementation.
//
// Backends offer no per-key TTL and no cross-bucket transactions. Bucket
// creation is idempotent only in the sense that a losing racer receives
// ErrBucketExists and is expected to re-open the bucket.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrBucketNotFound is returned when opening a bucket that was never created.
	ErrBucketNotFound = errors.New("kv: bucket not found")

	// ErrBucketExists is returned by CreateBucket when another caller created it first.
	ErrBucketExists = errors.New("kv: bucket already exists")

	// ErrKeyNotFound is returned by Get for a missing key.
	ErrKeyNotFound = errors.New("kv: key not found")
)

// Bucket is a flat key/value namespace.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// Get returns the value stored at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value at key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Keys lists the keys starting with prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Store provisions and opens buckets.
type Store interface {
	// Bucket opens an existing bucket, or returns ErrBucketNotFound.
	Bucket(ctx context.Context, name string) (Bucket, error)

	// CreateBucket creates a bucket, or returns ErrBucketExists.
	CreateBucket(ctx context.Context, name string) (Bucket, error)

	// Close releases backend resources.
	Close() error
}
