package main

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/middleware"
	"github.com/spf13/cobra"
)

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Print the digest to list under server.adminKeyHashes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), middleware.HashKey(args[0]))
			return nil
		},
	}
}
