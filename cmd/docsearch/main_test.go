package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	shardData, err := os.ReadFile(filepath.Join("..", "..", "internal", "shard", "testdata", "variables_69.js"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "search"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "search", "variables_69.js"), shardData, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "structgps__t.html"), []byte("<html/>"), 0o644))
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	dir := writeSite(t)
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{
		"--shard-dir", filepath.Join(dir, "search"),
		"--site-dir", dir,
		"--base-url", "/docs",
	}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestQueryCommand(t *testing.T) {
	out, err := run(t, "", "query", "idle")
	require.NoError(t, err)
	timer := strings.Index(out, "idle_timer (variable)")
	timeout := strings.Index(out, "idle_timeout (variable)")
	require.GreaterOrEqual(t, timer, 0, out)
	require.GreaterOrEqual(t, timeout, 0, out)
	assert.Less(t, timer, timeout, "shorter key ranks first")
	assert.Contains(t, out, "gps_t  structgps__t.html#a647299d8c4202a580ad3123b4039ce9a")

	out, err = run(t, "", "query", "zzz")
	require.NoError(t, err)
	assert.Equal(t, "no results for \"zzz\"\n", out)
}

func TestQueryCommandJSON(t *testing.T) {
	out, err := run(t, "", "--json", "query", "--limit", "2", "ins")
	require.NoError(t, err)
	var res query.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Groups, 2)
	assert.True(t, res.Truncated)
	assert.Equal(t, "ins", res.Groups[0].Key, "exact match first")
}

func TestResolveCommand(t *testing.T) {
	out, err := run(t, "", "resolve", "structgps__t.html", "a1")
	require.NoError(t, err)
	assert.Equal(t, "/docs/structgps__t.html#a1\n", out)

	_, err = run(t, "", "resolve", "classKalman.html")
	assert.Error(t, err)
}

func TestReplCommand(t *testing.T) {
	input := strings.Join([]string{
		"idle",
		":down",
		":enter",
		"i2c_",
		":enter",
		":bogus",
		"",
		":quit",
		"never typed",
	}, "\n") + "\n"
	out, err := run(t, input, "repl")
	require.NoError(t, err)

	assert.Contains(t, out, "> idle_timeout (variable)")
	assert.Contains(t, out, "-> /docs/structgps__t.html#a647299d8c4202a580ad3123b4039ce9a")
	assert.Contains(t, out, "not navigable:")
	assert.Contains(t, out, `unknown key "bogus"`)
	assert.Contains(t, out, "(idle)")
	assert.NotContains(t, out, "never typed")
}

func TestManifestListCommand(t *testing.T) {
	out, err := run(t, "", "manifest", "list")
	require.NoError(t, err)
	assert.Equal(t, "structgps__t.html\t/docs/structgps__t.html\n", out)
}

func TestHashKeyCommand(t *testing.T) {
	out, err := run(t, "", "hash-key", "secret")
	require.NoError(t, err)
	assert.Equal(t, "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b\n", out)
}
