package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/memhive/internal/engine"
	"github.com/rcliao/memhive/internal/model"
)

func init() {
	remember := &cobra.Command{
		Use:   "remember [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runRemember,
	}
	remember.Flags().StringP("scope", "s", "private", "Scope: private, personal, team, public")
	remember.Flags().StringP("category", "k", "recent", "Category: recent, tasks, longterm, core, decisions, architecture, learnings")
	metadataFlags(remember)

	task := &cobra.Command{
		Use:   "task [content]",
		Short: "Store a private task (expires after 24h)",
		Run:   runRemember,
	}
	metadataFlags(task)

	learn := &cobra.Command{
		Use:   "learn [content]",
		Short: "Store a private learning to promote later with commit",
		Run:   runRemember,
	}
	metadataFlags(learn)

	RootCmd.AddCommand(remember, task, learn)
}

func runRemember(cmd *cobra.Command, args []string) {
	content, err := readContent(args, cmd.InOrStdin())
	if err != nil {
		exitErr("read stdin", err)
	}
	if content == "" {
		exitErr(cmd.Name(), fmt.Errorf("content is required (positional arg or stdin)"))
	}
	md := metadataFromFlags(cmd)

	s := mustSession()
	defer s.Close()
	ctx := cmd.Context()

	var res *engine.WriteResult
	switch cmd.Name() {
	case "task":
		res, err = s.engine.RememberTask(ctx, s.caller, content, md)
	case "learn":
		res, err = s.engine.RememberLearning(ctx, s.caller, content, md)
	default:
		scopeStr, _ := cmd.Flags().GetString("scope")
		catStr, _ := cmd.Flags().GetString("category")
		in := engine.RememberInput{Content: content, Metadata: md}
		if in.Scope, err = model.ParseScope(scopeStr, model.ScopePrivate); err != nil {
			exitErr("remember", err)
		}
		if in.Category, err = model.ParseCategory(catStr, model.CategoryRecent); err != nil {
			exitErr("remember", err)
		}
		res, err = s.engine.Remember(ctx, s.caller, in)
	}
	if err != nil {
		exitErr(cmd.Name(), err)
	}
	printJSON(cmd.OutOrStdout(), res)
}
