package etcdkv

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/rcliao/memhive/internal/kv"
	"github.com/rcliao/memhive/internal/kv/kvtest"
)

// The conformance run needs a live cluster, e.g.
// MEMHIVE_TEST_ETCD_ENDPOINTS=localhost:2379 go test ./internal/kv/etcdkv
func testEndpoints(t *testing.T) []string {
	t.Helper()
	raw := os.Getenv("MEMHIVE_TEST_ETCD_ENDPOINTS")
	if raw == "" {
		t.Skip("MEMHIVE_TEST_ETCD_ENDPOINTS not set")
	}
	return strings.Split(raw, ",")
}

func TestConformance(t *testing.T) {
	endpoints := testEndpoints(t)
	kvtest.Run(t, func(t *testing.T) kv.Store {
		// A unique namespace per subtest keeps runs independent.
		ns := fmt.Sprintf("memhive-test-%d", time.Now().UnixNano())
		s, err := Open(Config{Endpoints: endpoints, Namespace: ns, DialTimeout: 2 * time.Second})
		require.NoError(t, err)
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, _ = s.client.Delete(ctx, ns+"/", clientv3.WithPrefix())
			_ = s.Close()
		})
		return s
	})
}

func TestOpenRequiresEndpoints(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoints cannot be empty")
}

func TestKeyLayout(t *testing.T) {
	s := New(nil, "memhive/")
	assert.Equal(t, "memhive/buckets/memhive-global", s.markerKey("memhive-global"))
	assert.Equal(t, "memhive/data/memhive-global/", s.dataPrefix("memhive-global"))

	b := s.bucket("memhive-project-p1")
	assert.Equal(t, "memhive-project-p1", b.Name())
	assert.Equal(t, "memhive/data/memhive-project-p1/", b.prefix)
}
