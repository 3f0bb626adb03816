// Package navigation turns opaque symbol targets into concrete page URLs
// using a site manifest supplied by the documentation build.
package navigation

import (
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest maps page IDs to base URLs.
type Manifest interface {
	PageURL(pageID string) (string, bool)
}

// StaticManifest is an immutable in-memory manifest.
type StaticManifest struct {
	pages map[string]string
}

// NewStaticManifest copies pages into a new manifest.
func NewStaticManifest(pages map[string]string) *StaticManifest {
	return &StaticManifest{pages: maps.Clone(pages)}
}

func (m *StaticManifest) PageURL(pageID string) (string, bool) {
	u, ok := m.pages[pageID]
	return u, ok
}

// Len reports the number of pages.
func (m *StaticManifest) Len() int {
	return len(m.pages)
}

// PageIDs returns every page ID in sorted order.
func (m *StaticManifest) PageIDs() []string {
	return slices.Sorted(maps.Keys(m.pages))
}

// manifestFile is the YAML layout of a manifest file. Relative page URLs are
// joined onto BaseURL.
type manifestFile struct {
	BaseURL string            `yaml:"baseUrl"`
	Pages   map[string]string `yaml:"pages"`
}

// LoadManifestFile reads a YAML manifest:
//
//	baseUrl: https://docs.example.org/firmware/
//	pages:
//	  classImu.html: classImu.html
//	  main_8c.html: /firmware/main_8c.html
func LoadManifestFile(path string) (*StaticManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if len(mf.Pages) == 0 {
		return nil, fmt.Errorf("manifest %s lists no pages", path)
	}
	pages := make(map[string]string, len(mf.Pages))
	for id, u := range mf.Pages {
		if id == "" {
			return nil, fmt.Errorf("manifest %s: empty page id", path)
		}
		if u == "" {
			u = id
		}
		pages[id] = joinURL(mf.BaseURL, u)
	}
	return &StaticManifest{pages: pages}, nil
}

// ScanSite builds a manifest from the HTML pages of a generated site. Page
// IDs are slash-separated paths relative to dir, which is how shard targets
// reference them; the search/ directory holding the shards is skipped.
func ScanSite(dir, baseURL string) (*StaticManifest, error) {
	pages := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == "search" {
				return filepath.SkipDir
			}
			return nil
		}
		if ext := strings.ToLower(filepath.Ext(rel)); ext != ".html" && ext != ".htm" {
			return nil
		}
		pages[rel] = joinURL(baseURL, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning site %s: %w", dir, err)
	}
	return &StaticManifest{pages: pages}, nil
}

// joinURL resolves ref against base unless ref is already absolute or
// rooted.
func joinURL(base, ref string) string {
	if base == "" || strings.Contains(ref, "://") || strings.HasPrefix(ref, "/") {
		return ref
	}
	return strings.TrimRight(base, "/") + "/" + ref
}
