package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/memhive/internal/engine"
	"github.com/rcliao/memhive/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "commit <id>",
		Short: "Promote a recent or task memory to longterm",
		Args:  cobra.ExactArgs(1),
		Run:   runCommit,
	}
	cmd.Flags().String("content", "", "Replace the content while promoting")
	cmd.Flags().StringP("scope", "s", "", "Move to scope: private or personal (default: keep)")

	RootCmd.AddCommand(cmd)
}

func runCommit(cmd *cobra.Command, args []string) {
	content, _ := cmd.Flags().GetString("content")
	scopeStr, _ := cmd.Flags().GetString("scope")
	scope, err := model.ParseScope(scopeStr, "")
	if err != nil {
		exitErr("commit", err)
	}

	s := mustSession()
	defer s.Close()

	res, err := s.engine.CommitInsight(cmd.Context(), s.caller, engine.CommitInsightInput{
		ID:          args[0],
		Content:     content,
		TargetScope: scope,
	})
	if err != nil {
		exitErr("commit", err)
	}
	printJSON(cmd.OutOrStdout(), res)
}
