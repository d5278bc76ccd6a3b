package kv_test

import (
	"testing"

	"github.com/rcliao/memhive/internal/kv"
	"github.com/rcliao/memhive/internal/kv/kvtest"
)

func TestMemoryStore(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		return kv.NewMemoryStore()
	})
}
