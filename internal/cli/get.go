package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a memory by id",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.Close()

	m, err := s.engine.Get(cmd.Context(), s.caller, args[0])
	if err != nil {
		exitErr("get", err)
	}
	printJSON(cmd.OutOrStdout(), m)
}
