package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/memhive/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Retrieve memories ranked by category and recency",
		Long: "Retrieve memories across scopes. Results are ranked core, longterm, decisions, architecture,\n" +
			"learnings, tasks, recent, and most recently updated first within a category.",
		Run: runRecall,
	}
	cmd.Flags().StringSliceP("scope", "s", nil, "Scopes to include (default all)")
	cmd.Flags().StringSliceP("category", "k", nil, "Categories to include (default all)")
	cmd.Flags().StringP("tags", "t", "", "Require all of these comma-separated tags")
	cmd.Flags().Int("min-priority", 0, "Minimum priority")
	cmd.Flags().Int("max-priority", 0, "Maximum priority")
	cmd.Flags().String("since", "", "Only memories updated after this RFC 3339 time or duration ago (e.g. 2h)")
	cmd.Flags().String("created-after", "", "Only memories created strictly after this time (RFC 3339 or duration ago)")
	cmd.Flags().String("created-before", "", "Only memories created strictly before this time")
	cmd.Flags().String("updated-after", "", "Only memories updated strictly after this time")
	cmd.Flags().String("updated-before", "", "Only memories updated strictly before this time")
	cmd.Flags().IntP("limit", "l", engine.DefaultRecallLimit, "Max results (1-200)")
	cmd.Flags().Bool("summary", false, "Print only the markdown summary")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	summaryOnly, _ := cmd.Flags().GetBool("summary")
	opts, err := recallOptions(cmd, args, time.Now())
	if err != nil {
		exitErr("recall", err)
	}

	s := mustSession()
	defer s.Close()

	res, err := s.engine.Recall(cmd.Context(), s.caller, opts)
	if err != nil {
		exitErr("recall", err)
	}
	if summaryOnly {
		fmt.Fprintln(cmd.OutOrStdout(), res.Summary)
		return
	}
	printJSON(cmd.OutOrStdout(), res)
}

// recallOptions builds recall options from the command's flags. Relative
// times are resolved against now.
func recallOptions(cmd *cobra.Command, args []string, now time.Time) (engine.RecallOptions, error) {
	scopes, _ := cmd.Flags().GetStringSlice("scope")
	cats, _ := cmd.Flags().GetStringSlice("category")
	tags, _ := cmd.Flags().GetString("tags")
	minP, _ := cmd.Flags().GetInt("min-priority")
	maxP, _ := cmd.Flags().GetInt("max-priority")
	limit, _ := cmd.Flags().GetInt("limit")

	opts := engine.RecallOptions{Limit: &limit}
	var err error
	if opts.Scopes, err = parseScopes(scopes); err != nil {
		return opts, err
	}
	if opts.Categories, err = parseCategories(cats); err != nil {
		return opts, err
	}
	for flag, dst := range map[string]**time.Time{
		"since":          &opts.Since,
		"created-after":  &opts.CreatedAfter,
		"created-before": &opts.CreatedBefore,
		"updated-after":  &opts.UpdatedAfter,
		"updated-before": &opts.UpdatedBefore,
	} {
		v, _ := cmd.Flags().GetString(flag)
		if *dst, err = parseTime(v, now); err != nil {
			return opts, fmt.Errorf("--%s: %w", flag, err)
		}
	}
	opts.Tags = splitTags(tags)
	opts.MinPriority, opts.MaxPriority = minP, maxP
	if len(args) > 0 {
		opts.Query = strings.Join(args, " ")
	}
	return opts, nil
}
