package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/rcliao/memhive/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import memories from an export",
		Long:  "Import memories from a file or stdin. Expects the format produced by export.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}
	cmd.Flags().Bool("overwrite", false, "Replace memories that already exist")
	cmd.Flags().Bool("strict", false, "Abort on the first invalid or conflicting record")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	strict, _ := cmd.Flags().GetBool("strict")
	skipInvalid := !strict

	opts := engine.ImportOptions{OverwriteExisting: overwrite, SkipInvalid: &skipInvalid}
	if len(args) == 1 {
		opts.Path = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			exitErr("read stdin", err)
		}
		opts.Data = data
	}

	s := mustSession()
	defer s.Close()

	res, err := s.engine.Import(cmd.Context(), s.caller, opts)
	if err != nil {
		exitErr("import", err)
	}
	printJSON(cmd.OutOrStdout(), res)
}
