package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	mcppkg "github.com/mark3labs/mcp-go/mcp"

	"github.com/rcliao/memhive/internal/engine"
	"github.com/rcliao/memhive/internal/kv"
	"github.com/rcliao/memhive/internal/router"
)

var caller = engine.Caller{AgentID: "a1", ProjectID: "p1"}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	e := engine.New(router.New(kv.NewMemoryStore(), nil), engine.Options{})
	return NewRegistry(e)
}

func callResultText(t *testing.T, res *mcppkg.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("expected non-empty tool result")
	}
	text, ok := mcppkg.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("expected text content")
	}
	return text.Text
}

func TestRegistryNames(t *testing.T) {
	r := newTestRegistry(t)
	want := []string{
		"cleanup", "commit_insight", "core_memory", "export", "forget", "forget_bulk",
		"get", "import", "recall", "remember", "remember_bulk", "remember_learning",
		"remember_task", "share_learning", "stats",
	}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
}

func TestCallRememberThenRecall(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	out, err := r.Call(ctx, "remember", caller, json.RawMessage(`{"content":"use WAL","category":"longterm","metadata":{"tags":["db"]}}`))
	if err != nil {
		t.Fatalf("remember: %v", err)
	}
	wr := out.(*engine.WriteResult)
	if wr.ID == "" || wr.Category != "longterm" {
		t.Fatalf("unexpected result %+v", wr)
	}

	out, err = r.Call(ctx, "recall", caller, json.RawMessage(`{"tags":["db"],"limit":5}`))
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	rr := out.(*engine.RecallResult)
	if rr.Counts.Returned != 1 || rr.Results["private"][0].ID != wr.ID {
		t.Fatalf("unexpected recall %+v", rr.Counts)
	}
}

func TestCallErrors(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name string
		tool string
		args string
		kind engine.Kind
	}{
		{"unknown tool", "nope", `{}`, engine.KindValidation},
		{"malformed args", "remember", `{"content": 5}`, engine.KindValidation},
		{"invalid pair", "remember", `{"content":"x","scope":"team","category":"recent"}`, engine.KindValidation},
		{"missing memory", "forget", `{"id":"missing"}`, engine.KindNotFound},
		{"bad share target", "share_learning", `{"id":"x","targetCategory":"core"}`, engine.KindInvalidCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Call(ctx, tt.tool, caller, json.RawMessage(tt.args))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := engine.KindOf(err); got != tt.kind {
				t.Fatalf("kind = %s, want %s (%v)", got, tt.kind, err)
			}
		})
	}
}

func TestCallerOverride(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	out, err := r.Call(ctx, "remember_task", caller, json.RawMessage(`{"content":"ship it","agentId":"b2"}`))
	if err != nil {
		t.Fatalf("remember_task: %v", err)
	}
	key := out.(*engine.WriteResult).Key
	if !strings.HasPrefix(key, "agents/b2/tasks/") {
		t.Fatalf("expected key under agent b2, got %q", key)
	}

	if _, err := r.Call(ctx, "remember", engine.Caller{}, nil); engine.KindOf(err) != engine.KindValidation {
		t.Fatalf("expected validation error without a caller, got %v", err)
	}
}

func TestBulkTools(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	out, err := r.Call(ctx, "remember_bulk", caller, json.RawMessage(`{"items":[{"content":"a"},{"content":""},{"content":"c"}]}`))
	if err != nil {
		t.Fatalf("remember_bulk: %v", err)
	}
	res := out.(engine.BulkResult[*engine.WriteResult])
	if len(res.Succeeded) != 2 || len(res.Failed) != 1 || res.Failed[0].Index != 1 {
		t.Fatalf("unexpected bulk result %+v", res)
	}

	args, _ := json.Marshal(map[string]any{"ids": []string{res.Succeeded[0].ID, "missing"}})
	out, err = r.Call(ctx, "forget_bulk", caller, args)
	if err != nil {
		t.Fatalf("forget_bulk: %v", err)
	}
	fres := out.(engine.BulkResult[*engine.ForgetResult])
	if len(fres.Succeeded) != 1 || len(fres.Failed) != 1 || fres.Failed[0].ID != "missing" {
		t.Fatalf("unexpected forget result %+v", fres)
	}
}

func TestMCPHandler(t *testing.T) {
	r := newTestRegistry(t)
	h := toolHandler(r, "core_memory", caller)

	req := mcppkg.CallToolRequest{Params: mcppkg.CallToolParams{Arguments: map[string]any{
		"content": "I am the release agent",
	}}}
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", callResultText(t, res))
	}
	var wr engine.WriteResult
	if err := json.Unmarshal([]byte(callResultText(t, res)), &wr); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if wr.Category != "core" {
		t.Fatalf("expected core category, got %q", wr.Category)
	}

	forget := toolHandler(r, "forget", caller)
	res, err = forget(context.Background(), mcppkg.CallToolRequest{Params: mcppkg.CallToolParams{Arguments: map[string]any{
		"id": wr.ID,
	}}})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected core memory to be protected")
	}
	if text := callResultText(t, res); !strings.HasPrefix(text, "CoreProtected: ") {
		t.Fatalf("unexpected error text %q", text)
	}
}

func TestNewMCPServer(t *testing.T) {
	r := newTestRegistry(t)
	if srv := NewMCPServer(r, caller, "test", nil); srv == nil {
		t.Fatal("expected MCP server instance")
	}
	if srv := NewMCPServer(r, caller, "test", ResolveTools("recall,remember")); srv == nil {
		t.Fatal("expected MCP server instance")
	}
}

func TestResolveTools(t *testing.T) {
	if ResolveTools("") != nil || ResolveTools(" all ") != nil || ResolveTools(" , ") != nil {
		t.Fatal("empty and all should mean every tool")
	}
	got := ResolveTools("recall, remember,")
	if len(got) != 2 || !got["recall"] || !got["remember"] {
		t.Fatalf("unexpected allowlist %v", got)
	}
}

func TestFormatError(t *testing.T) {
	err := &engine.Error{Kind: engine.KindForbidden, Op: "forget", Message: "not yours"}
	if got := FormatError(err); got != "Forbidden: not yours" {
		t.Fatalf("got %q", got)
	}
}

func TestRecallTimeBounds(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	tool, ok := r.Lookup("recall")
	if !ok {
		t.Fatal("recall tool missing")
	}
	schema := mcpTool(tool).InputSchema.Properties
	for _, name := range []string{"createdAfter", "createdBefore", "updatedAfter", "updatedBefore"} {
		if _, ok := schema[name]; !ok {
			t.Errorf("recall schema lacks %s", name)
		}
	}

	if _, err := r.Call(ctx, "remember", caller, json.RawMessage(`{"content":"use WAL","category":"longterm"}`)); err != nil {
		t.Fatalf("remember: %v", err)
	}
	for args, want := range map[string]int{
		`{"updatedAfter":"2000-01-01T00:00:00Z"}`:  1,
		`{"updatedBefore":"2000-01-01T00:00:00Z"}`: 0,
		`{"createdAfter":"2000-01-01T00:00:00Z"}`:  1,
		`{"createdBefore":"2000-01-01T00:00:00Z"}`: 0,
	} {
		out, err := r.Call(ctx, "recall", caller, json.RawMessage(args))
		if err != nil {
			t.Fatalf("recall %s: %v", args, err)
		}
		if got := out.(*engine.RecallResult).Counts.Returned; got != want {
			t.Errorf("recall %s returned %d, want %d", args, got, want)
		}
	}
}
