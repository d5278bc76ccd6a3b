package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rcliao/memhive/internal/engine"
)

const serverInstructions = `memhive is a hierarchical memory store shared by agents. ` +
	`Use remember/remember_task for short-lived notes, commit_insight to keep them, ` +
	`core_memory for identity facts, share_learning to publish to the team, ` +
	`and recall at the start of a session to load context.`

// ResolveTools parses a comma-separated allowlist. Empty or "all" returns nil,
// meaning every tool.
func ResolveTools(input string) map[string]bool {
	input = strings.TrimSpace(input)
	if input == "" || input == "all" {
		return nil
	}
	out := map[string]bool{}
	for _, name := range strings.Split(input, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out[name] = true
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NewMCPServer builds an MCP server exposing the registry. Calls run as
// caller unless the arguments name another agent or project. A nil
// allowlist registers every tool.
func NewMCPServer(r *Registry, caller engine.Caller, version string, allowlist map[string]bool) *server.MCPServer {
	srv := server.NewMCPServer(
		"memhive",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)
	for _, name := range r.Names() {
		if allowlist != nil && !allowlist[name] {
			continue
		}
		t, _ := r.Lookup(name)
		srv.AddTool(mcpTool(t), toolHandler(r, name, caller))
	}
	return srv
}

func mcpTool(t Tool) mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(t.Description),
		mcp.WithTitleAnnotation(t.Title),
		mcp.WithReadOnlyHintAnnotation(t.ReadOnly),
		mcp.WithDestructiveHintAnnotation(t.Destructive),
		mcp.WithOpenWorldHintAnnotation(false),
		mcp.WithString("agentId", mcp.Description("Run as this agent instead of the configured one")),
		mcp.WithString("projectId", mcp.Description("Run in this project instead of the configured one")),
	}
	for _, p := range t.Params {
		props := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			props = append(props, mcp.Required())
		}
		switch p.Type {
		case TypeNumber:
			opts = append(opts, mcp.WithNumber(p.Name, props...))
		case TypeBoolean:
			opts = append(opts, mcp.WithBoolean(p.Name, props...))
		case TypeArray:
			opts = append(opts, mcp.WithArray(p.Name, props...))
		case TypeObject:
			opts = append(opts, mcp.WithObject(p.Name, props...))
		default:
			opts = append(opts, mcp.WithString(p.Name, props...))
		}
	}
	return mcp.NewTool(t.Name, opts...)
}

func toolHandler(r *Registry, name string, caller engine.Caller) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}
		out, err := r.Call(ctx, name, caller, args)
		if err != nil {
			return mcp.NewToolResultError(FormatError(err)), nil
		}
		text, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return mcp.NewToolResultError("encode result: " + err.Error()), nil
		}
		return mcp.NewToolResultText(string(text)), nil
	}
}

// FormatError renders err as "<kind>: <message>".
func FormatError(err error) string {
	var e *engine.Error
	if errors.As(err, &e) && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %v", engine.KindOf(err), err)
}
