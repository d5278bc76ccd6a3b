package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/memhive/internal/engine"
	"github.com/rcliao/memhive/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "core [content]",
		Short: "Store a protected identity memory",
		Long:  "Store a core memory. Core memories never expire, are never evicted and need --force to forget.",
		Run:   runCore,
	}
	cmd.Flags().StringP("scope", "s", "private", "Scope: private or personal")
	metadataFlags(cmd)

	RootCmd.AddCommand(cmd)
}

func runCore(cmd *cobra.Command, args []string) {
	content, err := readContent(args, cmd.InOrStdin())
	if err != nil {
		exitErr("read stdin", err)
	}
	if content == "" {
		exitErr("core", fmt.Errorf("content is required (positional arg or stdin)"))
	}
	scopeStr, _ := cmd.Flags().GetString("scope")
	scope, err := model.ParseScope(scopeStr, model.ScopePrivate)
	if err != nil {
		exitErr("core", err)
	}

	s := mustSession()
	defer s.Close()

	res, err := s.engine.CoreMemory(cmd.Context(), s.caller, engine.CoreMemoryInput{
		Content:  content,
		Scope:    scope,
		Metadata: metadataFromFlags(cmd),
	})
	if err != nil {
		exitErr("core", err)
	}
	printJSON(cmd.OutOrStdout(), res)
}
