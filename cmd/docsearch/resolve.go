package main

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
	"github.com/spf13/cobra"
)

func newResolveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <page> [anchor]",
		Short: "Resolve a navigation target to a URL",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, _, err := flags.buildStack(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			target := symbol.Target{PageID: args[0]}
			if len(args) == 2 {
				target.Anchor = args[1]
			}
			url, err := stack.Resolver.Resolve(target)
			if err != nil {
				return err
			}
			if flags.jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"url": url})
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}
