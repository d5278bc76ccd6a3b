package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/memhive/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired memories and enforce category quotas",
		Long: "Delete expired recent and task memories, then evict the oldest recent (over 1000) and\n" +
			"task (over 500) memories. Core memories are never evicted; exceeding 100 is only reported.",
		Run: runCleanup,
	}
	cmd.Flags().Bool("expired-only", false, "Skip quota enforcement")
	cmd.Flags().StringSliceP("scope", "s", nil, "Scopes to clean: private (default), personal")

	RootCmd.AddCommand(cmd)
}

func runCleanup(cmd *cobra.Command, args []string) {
	expiredOnly, _ := cmd.Flags().GetBool("expired-only")
	scopeStrs, _ := cmd.Flags().GetStringSlice("scope")
	scopes, err := parseScopes(scopeStrs)
	if err != nil {
		exitErr("cleanup", err)
	}

	s := mustSession()
	defer s.Close()

	res, err := s.engine.Cleanup(cmd.Context(), s.caller, engine.CleanupOptions{
		ExpiredOnly: expiredOnly,
		Scopes:      scopes,
	})
	if err != nil {
		exitErr("cleanup", err)
	}
	printJSON(cmd.OutOrStdout(), res)
}
