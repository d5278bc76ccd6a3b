package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/memhive/internal/engine"
	"github.com/rcliao/memhive/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "share <id>",
		Short: "Publish a longterm or core memory to the team",
		Args:  cobra.ExactArgs(1),
		Run:   runShare,
	}
	cmd.Flags().StringP("category", "k", "learnings", "Team category: decisions, architecture, learnings")
	cmd.Flags().Bool("keep", false, "Keep the original memory")

	RootCmd.AddCommand(cmd)
}

func runShare(cmd *cobra.Command, args []string) {
	catStr, _ := cmd.Flags().GetString("category")
	keep, _ := cmd.Flags().GetBool("keep")

	s := mustSession()
	defer s.Close()

	res, err := s.engine.ShareLearning(cmd.Context(), s.caller, engine.ShareLearningInput{
		ID:             args[0],
		TargetCategory: model.Category(catStr),
		KeepOriginal:   keep,
	})
	if err != nil {
		exitErr("share", err)
	}
	printJSON(cmd.OutOrStdout(), res)
}
