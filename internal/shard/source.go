// Package shard fetches, parses and caches the per-letter symbol shards a
// documentation generator emits. Shards are addressed as
// <category>_<letterCode>.<ext> and loaded lazily, at most once per session.
package shard

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
)

// ErrNotFound reports that no shard exists under a name. The generator only
// emits letters that have symbols, so a missing shard is an empty one.
var ErrNotFound = errors.New("shard not found")

// Source returns the raw bytes of a named shard file.
type Source interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Name builds the shard file name for a category and letter code.
func Name(category symbol.Category, letter, ext string) string {
	return fmt.Sprintf("%s_%s.%s", category.Prefix(), letter, ext)
}

// FileSource reads shards from a local directory, usually the search/
// directory of a generated site.
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid shard name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading shard %s: %w", name, err)
	}
	return data, nil
}

func (s *FileSource) String() string {
	return "file:" + s.dir
}
