package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/memhive/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "forget <id> [id...]",
		Short: "Delete memories by id",
		Long:  "Delete one or more memories. Core memories need --force. Several ids are processed in order and reported per id.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runForget,
	}
	cmd.Flags().Bool("force", false, "Allow deleting core memories")
	cmd.Flags().Bool("stop-on-error", false, "Stop at the first failure")

	RootCmd.AddCommand(cmd)
}

func runForget(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")
	stop, _ := cmd.Flags().GetBool("stop-on-error")

	s := mustSession()
	defer s.Close()

	if len(args) == 1 {
		res, err := s.engine.Forget(cmd.Context(), s.caller, engine.ForgetInput{ID: args[0], Force: force})
		if err != nil {
			exitErr("forget", err)
		}
		printJSON(cmd.OutOrStdout(), res)
		return
	}
	printJSON(cmd.OutOrStdout(), s.engine.ForgetBulk(cmd.Context(), s.caller, args, force, stop))
}
