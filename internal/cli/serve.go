package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/rcliao/memhive/internal/tools"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve memory tools over MCP stdio",
		Long: "Run an MCP server on stdin/stdout exposing every memory operation as a tool.\n" +
			"Calls run as the configured agent and project unless a call passes agentId or projectId.",
		Run: runServe,
	}
	cmd.Flags().String("tools", "", "Comma-separated tool allowlist (default all)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	allow, _ := cmd.Flags().GetString("tools")

	s := mustSession()
	defer s.Close()

	reg := tools.NewRegistry(s.engine)
	srv := tools.NewMCPServer(reg, s.caller, Version, tools.ResolveTools(allow))
	s.logger.Info("serving MCP over stdio", "backend", s.cfg.Backend, "agent", s.caller.AgentID, "project", s.caller.ProjectID)
	if err := server.ServeStdio(srv); err != nil {
		exitErr("serve", err)
	}
}
