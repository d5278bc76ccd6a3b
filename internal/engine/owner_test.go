package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memhive/internal/kv"
	"github.com/rcliao/memhive/internal/model"
)

// foreign builds a private memory in alice's project owned by agentID.
func foreign(id, agentID string, c model.Category, created time.Time) model.Memory {
	m := record(id, model.ScopePrivate, c, created)
	m.AgentID = agentID
	m.ApplyTTL()
	return m
}

func TestUnsafeOwnerIDsRejected(t *testing.T) {
	store := &spyStore{Store: kv.NewMemoryStore()}
	e := newTestEngine(t, store)
	ctx := context.Background()

	for _, c := range []Caller{
		{AgentID: "a1/recent", ProjectID: "p1"},
		{AgentID: "a1", ProjectID: "p1/x"},
		{AgentID: "a.1", ProjectID: "p1"},
	} {
		_, err := e.Remember(ctx, c, RememberInput{Content: "secret"})
		assert.Equal(t, KindValidation, KindOf(err), "caller %+v", c)

		_, err = e.CoreMemory(ctx, c, CoreMemoryInput{Content: "identity"})
		assert.Equal(t, KindValidation, KindOf(err), "caller %+v", c)
	}
	assert.Zero(t, store.calls.Load(), "rejected callers must not reach the store")
}

func TestImportRejectsUnsafeOwnerIDs(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	created := testNow.Add(-time.Hour).Format(time.RFC3339)
	data := json.RawMessage(`{"version": "1.0", "memories": [
		{"id": "v1", "agentId": "a1/recent", "projectId": "p1", "scope": "private", "category": "longterm", "content": "planted", "createdAt": "` + created + `", "version": 1}
	]}`)
	res, err := e.Import(ctx, alice, ImportOptions{Data: data})
	require.NoError(t, err)
	assert.Zero(t, res.Imported)
	assert.Equal(t, 1, res.Skipped)

	recalled, err := e.Recall(ctx, alice, RecallOptions{})
	require.NoError(t, err)
	assert.Zero(t, recalled.Counts.Total)
}

func TestListingsIgnoreRecordsOfOtherOwners(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	// Keys under agents/a1/... written by owners whose ids extend a1's prefix.
	planted := foreign("v1", "a1/recent", model.CategoryRecent, testNow.Add(-time.Hour))
	stale := foreign("v2", "a1/x", model.CategoryRecent, testNow.Add(-30*time.Hour))
	seed(t, e, planted, stale)
	require.Equal(t, "agents/a1/recent/recent/v1", planted.Key())

	own := record("mine", model.ScopePrivate, model.CategoryLongterm, testNow.Add(-time.Hour))
	seed(t, e, own)

	t.Run("recall", func(t *testing.T) {
		res, err := e.Recall(ctx, alice, RecallOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"mine"}, ids(res.Results[model.ScopePrivate]))
		assert.Equal(t, 1, res.Counts.Total)
		assert.Zero(t, res.Counts.Expired)
	})

	t.Run("export", func(t *testing.T) {
		env, err := e.Snapshot(ctx, alice, ExportOptions{IncludeExpired: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"mine"}, ids(env.Memories))
	})

	t.Run("cleanup", func(t *testing.T) {
		res, err := e.Cleanup(ctx, alice, CleanupOptions{})
		require.NoError(t, err)
		assert.Zero(t, res.Expired)
		assert.Zero(t, res.Deleted)

		loc, err := model.LocationFor(model.ScopePrivate, alice.ProjectID, alice.AgentID)
		require.NoError(t, err)
		_, err = e.router.Read(ctx, loc, stale.Key())
		assert.NoError(t, err, "another owner's record must survive alice's cleanup")
	})
}

func TestCoreCeilingIgnoresOtherOwners(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	var planted []model.Memory
	for i := 0; i < MaxCoreMemories; i++ {
		planted = append(planted, foreign(fmt.Sprintf("core-%03d", i), "a1/core", model.CategoryCore, testNow))
	}
	seed(t, e, planted...)

	_, err := e.CoreMemory(ctx, alice, CoreMemoryInput{Content: "my own identity"})
	require.NoError(t, err)
}
