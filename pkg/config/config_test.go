package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Search.MaxResults)
	assert.Equal(t, "js", cfg.Site.ShardExt)
	assert.Contains(t, cfg.Site.Categories, "variables")
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsearch.yaml")
	content := `
server:
  port: 9999
site:
  shardDir: /srv/docs/search
  shardExt: json
  categories: [classes, variables]
search:
  maxResults: 20
  loadTimeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("DS_SEARCH_MAX_RESULTS", "25")
	t.Setenv("DS_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/srv/docs/search", cfg.Site.ShardDir)
	assert.Equal(t, []string{"classes", "variables"}, cfg.Site.Categories)
	assert.Equal(t, 3*time.Second, cfg.Search.LoadTimeout)
	assert.Equal(t, 25, cfg.Search.MaxResults)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no shard location", func(c *Config) { c.Site.ShardDir = ""; c.Site.ShardURL = "" }},
		{"no categories", func(c *Config) { c.Site.Categories = nil }},
		{"bad ext", func(c *Config) { c.Site.ShardExt = "xml" }},
		{"bad manifest source", func(c *Config) { c.Site.ManifestSource = "ldap" }},
		{"zero max results", func(c *Config) { c.Search.MaxResults = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
