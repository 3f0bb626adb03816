package main

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/navigation"
	"github.com/spf13/cobra"
)

func newManifestCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect or publish the site manifest",
	}
	cmd.AddCommand(newManifestListCmd(flags), newManifestPublishCmd(flags))
	return cmd
}

func newManifestListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every page the resolver knows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, _, err := flags.buildStack(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			pages := make(map[string]string, stack.Manifest.Len())
			for _, id := range stack.Manifest.PageIDs() {
				pages[id], _ = stack.Manifest.PageURL(id)
			}
			if flags.jsonOut {
				return writeJSON(cmd.OutOrStdout(), pages)
			}
			for _, id := range stack.Manifest.PageIDs() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, pages[id])
			}
			return nil
		},
	}
}

func newManifestPublishCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Scan the generated site and store its pages in PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			m, err := navigation.ScanSite(cfg.Site.SiteDir, cfg.Site.BaseURL)
			if err != nil {
				return err
			}
			store, db, err := bootstrap.OpenManifestStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.Publish(cmd.Context(), m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d pages\n", m.Len())
			return nil
		},
	}
}
