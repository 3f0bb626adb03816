package main

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	shardDir   string
	shardURL   string
	siteDir    string
	baseURL    string
	logLevel   string
	jsonOut    bool
}

// NewRootCmd wires the cobra tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "docsearch",
		Short:         "Search the symbols of a generated documentation site",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config file")
	pf.StringVar(&flags.shardDir, "shard-dir", "", "directory holding the search shards (overrides config)")
	pf.StringVar(&flags.shardURL, "shard-url", "", "base URL of remote search shards (overrides config)")
	pf.StringVar(&flags.siteDir, "site-dir", "", "generated site root scanned for pages (overrides config)")
	pf.StringVar(&flags.baseURL, "base-url", "", "URL prefix for resolved pages (overrides config)")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "log level")
	pf.BoolVar(&flags.jsonOut, "json", false, "print JSON instead of text")

	root.AddCommand(
		newQueryCmd(flags),
		newResolveCmd(flags),
		newReplCmd(flags),
		newManifestCmd(flags),
		newHashKeyCmd(),
	)
	return root
}

// loadConfig reads the config file and applies command-line overrides.
func (f *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	logger.SetupTo(cmd.ErrOrStderr(), f.logLevel, "text")
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.shardDir != "" {
		cfg.Site.ShardDir = f.shardDir
	}
	if f.shardURL != "" {
		cfg.Site.ShardURL = f.shardURL
	}
	if f.siteDir != "" {
		cfg.Site.SiteDir = f.siteDir
	}
	if f.baseURL != "" {
		cfg.Site.BaseURL = f.baseURL
	}
	return cfg, cfg.Validate()
}

// buildStack assembles a fresh search session. Metrics go to a private
// registry since the CLI serves no scrape endpoint.
func (f *globalFlags) buildStack(ctx context.Context, cmd *cobra.Command) (*bootstrap.Stack, *config.Config, error) {
	cfg, err := f.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	stack, err := bootstrap.Build(ctx, cfg, metrics.New(prometheus.NewRegistry()))
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("search stack ready", "pages", stack.Manifest.Len())
	return stack, cfg, nil
}
