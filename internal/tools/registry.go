// Package tools exposes engine operations as named tool calls with JSON
// arguments, and serves them over the Model Context Protocol.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rcliao/memhive/internal/engine"
	"github.com/rcliao/memhive/internal/model"
)

// Handler runs one tool call.
type Handler func(ctx context.Context, c engine.Caller, args json.RawMessage) (any, error)

// ParamType is the JSON schema type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Param documents one tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Tool is a registered operation.
type Tool struct {
	Name        string
	Title       string
	Description string
	Params      []Param
	ReadOnly    bool
	Destructive bool
	Handler     Handler
}

// Registry maps tool names to tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry registers every memory operation of e.
func NewRegistry(e *engine.Engine) *Registry {
	r := &Registry{tools: map[string]Tool{}}
	for _, t := range memoryTools(e) {
		r.tools[t.Name] = t
	}
	return r
}

// Names lists registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the tool called name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// identity lets any call override the caller it runs as.
type identity struct {
	AgentID   string `json:"agentId"`
	ProjectID string `json:"projectId"`
}

// Call runs tool name with args on behalf of c. An "agentId" or "projectId"
// argument replaces the corresponding caller field.
func (r *Registry) Call(ctx context.Context, name string, c engine.Caller, args json.RawMessage) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, &engine.Error{Kind: engine.KindValidation, Op: name, Message: fmt.Sprintf("unknown tool %q", name)}
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var id identity
	if err := json.Unmarshal(args, &id); err != nil {
		return nil, badArgs(name, err)
	}
	if id.AgentID != "" {
		c.AgentID = id.AgentID
	}
	if id.ProjectID != "" {
		c.ProjectID = id.ProjectID
	}
	return t.Handler(ctx, c, args)
}

func badArgs(op string, err error) error {
	return &engine.Error{Kind: engine.KindValidation, Op: op, Message: fmt.Sprintf("invalid arguments: %v", err), Err: err}
}

// handle adapts a typed operation into a Handler.
func handle[In any](name string, fn func(ctx context.Context, c engine.Caller, in In) (any, error)) Handler {
	return func(ctx context.Context, c engine.Caller, args json.RawMessage) (any, error) {
		var in In
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, badArgs(name, err)
		}
		return fn(ctx, c, in)
	}
}

type contentArgs struct {
	Content  string          `json:"content"`
	Metadata *model.Metadata `json:"metadata,omitempty"`
}

type idArgs struct {
	ID string `json:"id"`
}

type rememberBulkArgs struct {
	Items       []engine.RememberInput `json:"items"`
	StopOnError bool                   `json:"stopOnError"`
}

type forgetBulkArgs struct {
	IDs         []string `json:"ids"`
	Force       bool     `json:"force"`
	StopOnError bool     `json:"stopOnError"`
}

var (
	pContent  = Param{Name: "content", Type: TypeString, Description: "Memory text (UTF-8, at most 32 KiB)", Required: true}
	pMetadata = Param{Name: "metadata", Type: TypeObject, Description: "Optional {tags, priority 1-3, relatedIds, source}"}
	pID       = Param{Name: "id", Type: TypeString, Description: "Memory id", Required: true}
	pScopes   = Param{Name: "scopes", Type: TypeArray, Description: "Scopes to include: private, personal, team, public (default all)"}
	pCats     = Param{Name: "categories", Type: TypeArray, Description: "Categories to include (default all)"}
	pSince    = Param{Name: "since", Type: TypeString, Description: "RFC 3339 time; only memories updated after it"}
)

func memoryTools(e *engine.Engine) []Tool {
	return []Tool{
		{
			Name:        "remember",
			Title:       "Remember",
			Description: "Store a memory. Scope defaults to private and category to recent (expires after 24h).",
			Params: []Param{pContent,
				{Name: "scope", Type: TypeString, Description: "private, personal, team or public"},
				{Name: "category", Type: TypeString, Description: "recent, tasks, longterm, core (private/personal) or decisions, architecture, learnings (team/public)"},
				pMetadata},
			Handler: handle("remember", func(ctx context.Context, c engine.Caller, in engine.RememberInput) (any, error) {
				return e.Remember(ctx, c, in)
			}),
		},
		{
			Name:        "remember_task",
			Title:       "Remember Task",
			Description: "Store a private task that expires after 24 hours.",
			Params:      []Param{pContent, pMetadata},
			Handler: handle("remember_task", func(ctx context.Context, c engine.Caller, in contentArgs) (any, error) {
				return e.RememberTask(ctx, c, in.Content, in.Metadata)
			}),
		},
		{
			Name:        "remember_learning",
			Title:       "Remember Learning",
			Description: "Store a private recent learning. Promote it later with commit_insight.",
			Params:      []Param{pContent, pMetadata},
			Handler: handle("remember_learning", func(ctx context.Context, c engine.Caller, in contentArgs) (any, error) {
				return e.RememberLearning(ctx, c, in.Content, in.Metadata)
			}),
		},
		{
			Name:        "core_memory",
			Title:       "Core Memory",
			Description: "Store a protected identity memory (at most 100 per agent and scope).",
			Params: []Param{pContent,
				{Name: "scope", Type: TypeString, Description: "private (default) or personal"},
				pMetadata},
			Handler: handle("core_memory", func(ctx context.Context, c engine.Caller, in engine.CoreMemoryInput) (any, error) {
				return e.CoreMemory(ctx, c, in)
			}),
		},
		{
			Name:        "commit_insight",
			Title:       "Commit Insight",
			Description: "Promote a recent or tasks memory to longterm, optionally rewriting it or moving it to personal scope.",
			Params: []Param{pID,
				{Name: "content", Type: TypeString, Description: "Replacement content"},
				{Name: "targetScope", Type: TypeString, Description: "private or personal"}},
			Handler: handle("commit_insight", func(ctx context.Context, c engine.Caller, in engine.CommitInsightInput) (any, error) {
				return e.CommitInsight(ctx, c, in)
			}),
		},
		{
			Name:        "share_learning",
			Title:       "Share Learning",
			Description: "Copy a longterm or core memory into team scope under a new id.",
			Params: []Param{pID,
				{Name: "targetCategory", Type: TypeString, Description: "decisions, architecture or learnings (default)"},
				{Name: "keepOriginal", Type: TypeBoolean, Description: "Keep the source memory"}},
			Handler: handle("share_learning", func(ctx context.Context, c engine.Caller, in engine.ShareLearningInput) (any, error) {
				return e.ShareLearning(ctx, c, in)
			}),
		},
		{
			Name:        "forget",
			Title:       "Forget",
			Description: "Delete a memory by id. Core memories require force.",
			Params:      []Param{pID, {Name: "force", Type: TypeBoolean, Description: "Allow deleting core memories"}},
			Destructive: true,
			Handler: handle("forget", func(ctx context.Context, c engine.Caller, in engine.ForgetInput) (any, error) {
				return e.Forget(ctx, c, in)
			}),
		},
		{
			Name:        "remember_bulk",
			Title:       "Remember Bulk",
			Description: "Store several memories. Failures are reported per item; nothing is rolled back.",
			Params: []Param{
				{Name: "items", Type: TypeArray, Description: "List of {content, scope, category, metadata}", Required: true},
				{Name: "stopOnError", Type: TypeBoolean, Description: "Stop at the first failure"}},
			Handler: handle("remember_bulk", func(ctx context.Context, c engine.Caller, in rememberBulkArgs) (any, error) {
				return e.RememberBulk(ctx, c, in.Items, in.StopOnError), nil
			}),
		},
		{
			Name:        "forget_bulk",
			Title:       "Forget Bulk",
			Description: "Delete several memories by id.",
			Params: []Param{
				{Name: "ids", Type: TypeArray, Description: "Memory ids", Required: true},
				{Name: "force", Type: TypeBoolean, Description: "Allow deleting core memories"},
				{Name: "stopOnError", Type: TypeBoolean, Description: "Stop at the first failure"}},
			Destructive: true,
			Handler: handle("forget_bulk", func(ctx context.Context, c engine.Caller, in forgetBulkArgs) (any, error) {
				return e.ForgetBulk(ctx, c, in.IDs, in.Force, in.StopOnError), nil
			}),
		},
		{
			Name:        "cleanup",
			Title:       "Cleanup",
			Description: "Delete expired memories and evict the oldest recent (over 1000) and tasks (over 500) memories.",
			Params: []Param{
				{Name: "expiredOnly", Type: TypeBoolean, Description: "Skip quota enforcement"},
				{Name: "scopes", Type: TypeArray, Description: "private (default) and/or personal"}},
			Destructive: true,
			Handler: handle("cleanup", func(ctx context.Context, c engine.Caller, in engine.CleanupOptions) (any, error) {
				return e.Cleanup(ctx, c, in)
			}),
		},
		{
			Name:        "recall",
			Title:       "Recall",
			Description: "Retrieve memories across scopes ranked by category and recency, with a markdown summary.",
			Params: []Param{pScopes, pCats,
				{Name: "tags", Type: TypeArray, Description: "Memories must carry all of these tags"},
				{Name: "query", Type: TypeString, Description: "Case-insensitive substring of the content"},
				{Name: "minPriority", Type: TypeNumber, Description: "Minimum priority (1-3)"},
				{Name: "maxPriority", Type: TypeNumber, Description: "Maximum priority (1-3)"},
				pSince,
				{Name: "createdAfter", Type: TypeString, Description: "RFC 3339 time; only memories created strictly after it"},
				{Name: "createdBefore", Type: TypeString, Description: "RFC 3339 time; only memories created strictly before it"},
				{Name: "updatedAfter", Type: TypeString, Description: "RFC 3339 time; only memories updated strictly after it"},
				{Name: "updatedBefore", Type: TypeString, Description: "RFC 3339 time; only memories updated strictly before it"},
				{Name: "limit", Type: TypeNumber, Description: "Maximum results, 1-200 (default 50)"}},
			ReadOnly: true,
			Handler: handle("recall", func(ctx context.Context, c engine.Caller, in engine.RecallOptions) (any, error) {
				return e.Recall(ctx, c, in)
			}),
		},
		{
			Name:        "get",
			Title:       "Get Memory",
			Description: "Fetch one memory by id.",
			Params:      []Param{pID},
			ReadOnly:    true,
			Handler: handle("get", func(ctx context.Context, c engine.Caller, in idArgs) (any, error) {
				return e.Get(ctx, c, in.ID)
			}),
		},
		{
			Name:        "export",
			Title:       "Export",
			Description: "Write memories to a JSON export file.",
			Params: []Param{pScopes, pCats, pSince,
				{Name: "includeExpired", Type: TypeBoolean, Description: "Include expired memories"},
				{Name: "path", Type: TypeString, Description: "Output file"},
				{Name: "dir", Type: TypeString, Description: "Output directory for a timestamped file"}},
			Handler: handle("export", func(ctx context.Context, c engine.Caller, in engine.ExportOptions) (any, error) {
				return e.Export(ctx, c, in)
			}),
		},
		{
			Name:        "import",
			Title:       "Import",
			Description: "Load memories from a JSON export.",
			Params: []Param{
				{Name: "path", Type: TypeString, Description: "Export file to read"},
				{Name: "overwriteExisting", Type: TypeBoolean, Description: "Replace memories that already exist"},
				{Name: "skipInvalid", Type: TypeBoolean, Description: "Report bad records instead of aborting (default true)"}},
			Handler: handle("import", func(ctx context.Context, c engine.Caller, in engine.ImportOptions) (any, error) {
				return e.Import(ctx, c, in)
			}),
		},
		{
			Name:        "stats",
			Title:       "Stats",
			Description: "Count memories per scope and category.",
			ReadOnly:    true,
			Handler: handle("stats", func(ctx context.Context, c engine.Caller, _ struct{}) (any, error) {
				return e.Stats(ctx, c)
			}),
		},
	}
}
