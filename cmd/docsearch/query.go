package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/query"
	"github.com/spf13/cobra"
)

func newQueryCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run one search and print the ranked groups",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, _, err := flags.buildStack(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			res, err := stack.Engine.SearchN(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if flags.jsonOut {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), res, -1, -1)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum groups to print (0 uses the configured maximum)")
	return cmd
}

// printResult writes groups one per line with their members indented. The
// selected group and member are marked with '>'.
func printResult(w io.Writer, res *query.Result, selected, member int) {
	if len(res.Groups) == 0 {
		fmt.Fprintf(w, "no results for %q\n", res.Query)
		return
	}
	for i, g := range res.Groups {
		marker := " "
		if i == selected {
			marker = ">"
		}
		fmt.Fprintf(w, "%s %s (%s)\n", marker, g.Key, g.Category)
		for j, e := range g.Entries {
			mm := " "
			if i == selected && j == member {
				mm = ">"
			}
			scope := e.Scope
			if scope == "" {
				scope = "-"
			}
			fmt.Fprintf(w, "   %s %s  %s  %s#%s\n", mm, e.DisplayName, scope, e.Target.PageID, e.Target.Anchor)
		}
	}
	if res.Truncated {
		fmt.Fprintf(w, "... %d of %d groups shown\n", len(res.Groups), res.TotalGroups)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
