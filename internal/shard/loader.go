package shard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Key addresses one shard.
type Key struct {
	Category symbol.Category
	Letter   string
}

func (k Key) String() string {
	return k.Category.Prefix() + "_" + k.Letter
}

// LoadError reports a shard that could not be fetched or parsed. It is never
// fatal: the shard contributes no entries and search goes on.
type LoadError struct {
	Key Key
	Op  string // "fetch", "timeout" or "parse"
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading shard %s (%s): %v", e.Key, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func (e *LoadError) Is(target error) bool {
	return target == apperrors.ErrShardLoad
}

// LetterResult is the outcome of loading every category for one letter.
type LetterResult struct {
	Entries []symbol.Entry
	Errors  []error
	// Settled is true when every shard of the letter is cached, successfully
	// or with a permanent parse failure, so loading it again is a no-op.
	Settled bool
}

// Options configures a Loader.
type Options struct {
	Ext           string
	Categories    []symbol.Category
	LoadTimeout   time.Duration
	MaxConcurrent int
	Metrics       *metrics.Metrics
}

type loadedShard struct {
	entries []symbol.Entry
	err     error
}

// Loader fetches shards on demand and caches them for the session. At most
// one fetch per shard is in flight; concurrent callers share it.
type Loader struct {
	source  Source
	opts    Options
	group   singleflight.Group
	mu      sync.RWMutex
	loaded  map[Key]loadedShard
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewLoader(source Source, opts Options) *Loader {
	if opts.Ext == "" {
		opts.Ext = "js"
	}
	if len(opts.Categories) == 0 {
		opts.Categories = []symbol.Category{symbol.CategoryAll}
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Loader{
		source:  source,
		opts:    opts,
		loaded:  make(map[Key]loadedShard),
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "shard-loader"),
	}
}

// Load returns the entries of one shard, fetching it on first use. Repeated
// calls return the cached outcome. A shard that does not exist is empty.
func (l *Loader) Load(ctx context.Context, category symbol.Category, letter string) ([]symbol.Entry, error) {
	key := Key{Category: category, Letter: letter}
	if s, ok := l.cached(key); ok {
		return s.entries, s.err
	}
	// The fetch is shared by every waiter, so one caller's cancellation must
	// not abort it for the others.
	loadCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key.String(), func() (interface{}, error) {
		if s, ok := l.cached(key); ok {
			return s, nil
		}
		return l.fetch(loadCtx, key), nil
	})
	select {
	case res := <-ch:
		s := res.Val.(loadedShard)
		return s.entries, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LoadLetter loads every configured category for the letter of r.
func (l *Loader) LoadLetter(ctx context.Context, r rune) LetterResult {
	letter := symbol.LetterCode(r)
	type outcome struct {
		entries []symbol.Entry
		err     error
	}
	outcomes := make([]outcome, len(l.opts.Categories))
	var g errgroup.Group
	g.SetLimit(l.opts.MaxConcurrent)
	for i, category := range l.opts.Categories {
		g.Go(func() error {
			entries, err := l.Load(ctx, category, letter)
			outcomes[i] = outcome{entries: entries, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := LetterResult{Settled: true}
	for i, o := range outcomes {
		if o.err != nil {
			result.Errors = append(result.Errors, o.err)
		}
		result.Entries = append(result.Entries, o.entries...)
		if _, ok := l.cached(Key{Category: l.opts.Categories[i], Letter: letter}); !ok {
			result.Settled = false
		}
	}
	return result
}

// Loaded lists the shards cached so far, sorted by name.
func (l *Loader) Loaded() []Key {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]Key, 0, len(l.loaded))
	for k := range l.loaded {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func (l *Loader) cached(key Key) (loadedShard, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.loaded[key]
	return s, ok
}

func (l *Loader) store(key Key, s loadedShard) {
	l.mu.Lock()
	l.loaded[key] = s
	l.mu.Unlock()
}

// fetch loads and parses one shard. Missing shards and parse failures are
// cached; fetch failures are not, so the next query retries them.
func (l *Loader) fetch(ctx context.Context, key Key) loadedShard {
	start := time.Now()
	name := Name(key.Category, key.Letter, l.opts.Ext)

	data, err := l.fetchWithDeadline(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		l.observe(key, "missing", start)
		s := loadedShard{}
		l.store(key, s)
		return s
	case errors.Is(err, apperrors.ErrTimeout):
		l.observe(key, "timeout", start)
		l.logger.Warn("shard fetch timed out", "shard", name, "limit", l.opts.LoadTimeout)
		return loadedShard{err: &LoadError{Key: key, Op: "timeout", Err: err}}
	case err != nil:
		l.observe(key, "fetch_error", start)
		l.logger.Warn("shard fetch failed", "shard", name, "error", err)
		return loadedShard{err: &LoadError{Key: key, Op: "fetch", Err: err}}
	}

	entries, err := Parse(key.Category, data)
	if err != nil {
		l.observe(key, "parse_error", start)
		l.logger.Warn("shard parse failed, excluding shard", "shard", name, "error", err)
		s := loadedShard{err: &LoadError{Key: key, Op: "parse", Err: err}}
		l.store(key, s)
		return s
	}
	l.observe(key, "ok", start)
	l.logger.Info("shard loaded",
		"shard", name,
		"entries", len(entries),
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s := loadedShard{entries: entries}
	l.store(key, s)
	return s
}

type fetched struct {
	data []byte
	err  error
}

// fetchWithDeadline bounds a source fetch by LoadTimeout. A source that
// ignores ctx is abandoned at the deadline and finishes in the background.
func (l *Loader) fetchWithDeadline(ctx context.Context, name string) ([]byte, error) {
	if l.opts.LoadTimeout <= 0 {
		return l.source.Fetch(ctx, name)
	}
	ctx, cancel := context.WithTimeout(ctx, l.opts.LoadTimeout)
	defer cancel()
	done := make(chan fetched, 1)
	go func() {
		data, err := l.source.Fetch(ctx, name)
		done <- fetched{data: data, err: err}
	}()
	select {
	case f := <-done:
		if f.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %v: %w", apperrors.ErrTimeout, name, l.opts.LoadTimeout, f.err)
		}
		return f.data, f.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s after %v", apperrors.ErrTimeout, name, l.opts.LoadTimeout)
	}
}

func (l *Loader) observe(key Key, status string, start time.Time) {
	if l.metrics == nil {
		return
	}
	l.metrics.ShardLoadsTotal.WithLabelValues(key.Category.Prefix(), status).Inc()
	l.metrics.ShardLoadDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}
