package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/memhive/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSON",
		Long:  "Write memories to a JSON export file. Without --out a timestamped file is created in --dir.",
		Run:   runExport,
	}
	cmd.Flags().StringP("out", "o", "", "Output file")
	cmd.Flags().String("dir", "", "Output directory (default: export.dir from config)")
	cmd.Flags().StringSliceP("scope", "s", nil, "Scopes to include (default all)")
	cmd.Flags().StringSliceP("category", "k", nil, "Categories to include (default all)")
	cmd.Flags().String("since", "", "Only memories updated after this RFC 3339 time or duration ago")
	cmd.Flags().Bool("include-expired", false, "Include expired memories")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	out, _ := cmd.Flags().GetString("out")
	dir, _ := cmd.Flags().GetString("dir")
	scopes, _ := cmd.Flags().GetStringSlice("scope")
	cats, _ := cmd.Flags().GetStringSlice("category")
	sinceStr, _ := cmd.Flags().GetString("since")
	includeExpired, _ := cmd.Flags().GetBool("include-expired")

	opts := engine.ExportOptions{Path: out, Dir: dir, IncludeExpired: includeExpired}
	var err error
	if opts.Scopes, err = parseScopes(scopes); err != nil {
		exitErr("export", err)
	}
	if opts.Categories, err = parseCategories(cats); err != nil {
		exitErr("export", err)
	}
	if opts.Since, err = parseTime(sinceStr, time.Now()); err != nil {
		exitErr("export", err)
	}

	s := mustSession()
	defer s.Close()
	if opts.Dir == "" {
		opts.Dir = s.cfg.Export.Dir
	}

	res, err := s.engine.Export(cmd.Context(), s.caller, opts)
	if err != nil {
		exitErr("export", err)
	}
	printJSON(cmd.OutOrStdout(), res)
}
