package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memhive/internal/tools"
)

func init() {
	cmd := &cobra.Command{
		Use:   "call <tool> [json-args]",
		Short: "Invoke a tool by name with JSON arguments",
		Long:  "Invoke any registered tool the way an MCP client would. Arguments default to {}.",
		Args:  cobra.RangeArgs(1, 2),
		Run:   runCall,
	}
	cmd.Flags().Bool("list", false, "List tool names instead of calling")

	RootCmd.AddCommand(cmd)
}

func runCall(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.Close()

	reg := tools.NewRegistry(s.engine)
	if list, _ := cmd.Flags().GetBool("list"); list {
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(reg.Names(), "\n"))
		return
	}

	var raw json.RawMessage
	if len(args) == 2 {
		raw = json.RawMessage(args[1])
		if !json.Valid(raw) {
			exitErr("call", fmt.Errorf("arguments are not valid JSON"))
		}
	}
	out, err := reg.Call(cmd.Context(), args[0], s.caller, raw)
	if err != nil {
		exitErr("call "+args[0], err)
	}
	printJSON(cmd.OutOrStdout(), out)
}
