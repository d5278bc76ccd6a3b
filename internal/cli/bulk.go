package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/memhive/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember-bulk [file]",
		Short: "Store memories from a JSON array",
		Long: "Store a JSON array of {content, scope, category, metadata} items read from a file or stdin.\n" +
			"Failures are reported per item; earlier writes are never rolled back.",
		Args: cobra.MaximumNArgs(1),
		Run:  runRememberBulk,
	}
	cmd.Flags().Bool("stop-on-error", false, "Stop at the first failure")

	RootCmd.AddCommand(cmd)
}

func runRememberBulk(cmd *cobra.Command, args []string) {
	stop, _ := cmd.Flags().GetBool("stop-on-error")

	var (
		data []byte
		err  error
	)
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		exitErr("read input", err)
	}

	var items []engine.RememberInput
	if err := json.Unmarshal(data, &items); err != nil {
		exitErr("parse json", err)
	}

	s := mustSession()
	defer s.Close()

	printJSON(cmd.OutOrStdout(), s.engine.RememberBulk(cmd.Context(), s.caller, items, stop))
}
