package navigation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := NewResolver(NewStaticManifest(map[string]string{
		"classPx4flow__i2c.html": "/docs/classPx4flow__i2c.html",
		"main_8c.html":           "https://docs.example.org/main_8c.html#stale",
	}), m)

	u, err := r.Resolve(symbol.Target{PageID: "classPx4flow__i2c.html", Anchor: "a4e720676ecbc4f5bc49dd10dedcb82d7"})
	require.NoError(t, err)
	assert.Equal(t, "/docs/classPx4flow__i2c.html#a4e720676ecbc4f5bc49dd10dedcb82d7", u)

	u, err = r.Resolve(symbol.Target{PageID: "main_8c.html"})
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.org/main_8c.html", u)

	_, err = r.Resolve(symbol.Target{PageID: "classMissing.html", Anchor: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnresolvedTarget)
	var unresolved *UnresolvedTargetError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "classMissing.html", unresolved.Target.PageID)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NavigationsTotal.WithLabelValues("resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NavigationsTotal.WithLabelValues("unresolved")))
}

func TestResolveIsPure(t *testing.T) {
	r := NewResolver(NewStaticManifest(map[string]string{"p.html": "p.html"}), nil)
	target := symbol.Target{PageID: "p.html", Anchor: "a1"}
	first, err := r.Resolve(target)
	require.NoError(t, err)
	second, err := r.Resolve(target)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, symbol.Target{PageID: "p.html", Anchor: "a1"}, target)
}

func TestSetManifest(t *testing.T) {
	r := NewResolver(NewStaticManifest(nil), nil)
	_, err := r.Resolve(symbol.Target{PageID: "p.html"})
	assert.ErrorIs(t, err, apperrors.ErrUnresolvedTarget)

	r.SetManifest(NewStaticManifest(map[string]string{"p.html": "/p.html"}))
	u, err := r.Resolve(symbol.Target{PageID: "p.html"})
	require.NoError(t, err)
	assert.Equal(t, "/p.html", u)
}

func TestLoadManifestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
baseUrl: https://docs.example.org/fw/
pages:
  classImu.html: classImu.html
  main_8c.html: /other/main_8c.html
  globals.html: ""
`), 0o644))

	m, err := LoadManifestFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())
	u, _ := m.PageURL("classImu.html")
	assert.Equal(t, "https://docs.example.org/fw/classImu.html", u)
	u, _ = m.PageURL("main_8c.html")
	assert.Equal(t, "/other/main_8c.html", u)
	u, _ = m.PageURL("globals.html")
	assert.Equal(t, "https://docs.example.org/fw/globals.html", u)

	require.NoError(t, os.WriteFile(path, []byte("pages: {}\n"), 0o644))
	_, err = LoadManifestFile(path)
	assert.Error(t, err)

	_, err = LoadManifestFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestScanSite(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"index.html", "classImu.html", "search/variables_69.js", "search/search.html", "sub/page.htm", "style.css"} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	m, err := ScanSite(dir, "/docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"classImu.html", "index.html", "sub/page.htm"}, m.PageIDs())
	u, _ := m.PageURL("sub/page.htm")
	assert.Equal(t, "/docs/sub/page.htm", u)

	m, err = ScanSite(dir, "")
	require.NoError(t, err)
	u, _ = m.PageURL("classImu.html")
	assert.Equal(t, "classImu.html", u)
}
