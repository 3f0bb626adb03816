package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/tracing"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxResults bounds the groups returned by one search.
const DefaultMaxResults = 50

// Loader loads every shard of one leading letter.
type Loader interface {
	LoadLetter(ctx context.Context, r rune) shard.LetterResult
}

// Result is the answer to one search. Results may be served from the cache
// and shared between callers, so treat them as read-only.
type Result struct {
	Query       string  `json:"query"`
	Groups      []Group `json:"groups"`
	Truncated   bool    `json:"truncated"`
	TotalGroups int     `json:"total_groups"`
	Generation  uint64  `json:"generation"`
	CacheHit    bool    `json:"cache_hit"`
	ShardErrors int     `json:"shard_errors"`
	TookMs      float64 `json:"took_ms"`
}

// Options configures an Engine.
type Options struct {
	MaxResults     int
	MaxQueryLength int
	CacheSize      int
	Metrics        *metrics.Metrics
}

// Engine runs searches against a session's index, loading shards for a
// letter the first time a query needs it.
type Engine struct {
	loader  Loader
	index   *symbol.Index
	opts    Options
	mu      sync.Mutex
	settled map[rune]int // letter -> permanent shard errors
	cache   *lru.Cache[string, *Result]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(loader Loader, index *symbol.Index, opts Options) (*Engine, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.MaxQueryLength <= 0 {
		opts.MaxQueryLength = DefaultMaxQueryLength
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	cache, err := lru.New[string, *Result](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}
	return &Engine{
		loader:  loader,
		index:   index,
		opts:    opts,
		settled: make(map[rune]int),
		cache:   cache,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "query-engine"),
	}, nil
}

// Index returns the index the engine searches.
func (e *Engine) Index() *symbol.Index {
	return e.index
}

// MaxResults is the default group limit.
func (e *Engine) MaxResults() int {
	return e.opts.MaxResults
}

// Search runs raw with the configured group limit.
func (e *Engine) Search(ctx context.Context, raw string) (*Result, error) {
	return e.SearchN(ctx, raw, e.opts.MaxResults)
}

// SearchN runs raw returning at most limit groups. Shard failures never fail
// a search; they are reported in ShardErrors. Only cancellation of ctx is
// returned as an error.
func (e *Engine) SearchN(ctx context.Context, raw string, limit int) (*Result, error) {
	start := time.Now()
	if limit <= 0 || limit > e.opts.MaxResults {
		limit = e.opts.MaxResults
	}
	plan := Parse(raw, e.opts.MaxQueryLength)
	if plan.Empty() {
		e.observe("empty", "none", start, nil)
		return &Result{Query: plan.Needle, Groups: []Group{}, Generation: e.index.Generation()}, nil
	}

	ctx, span := tracing.StartChildSpan(ctx, "query.search")
	defer span.End()
	span.SetAttr("needle", plan.Needle)

	shardErrors, err := e.ensureLetter(ctx, plan.Letter)
	if err != nil {
		e.observe("error", "none", start, nil)
		return nil, err
	}

	generation := e.index.Generation()
	cacheKey := fmt.Sprintf("%d|%d|%s", generation, limit, plan.Needle)
	if cached, ok := e.cache.Get(cacheKey); ok {
		res := *cached
		res.CacheHit = true
		res.ShardErrors = shardErrors
		res.TookMs = elapsedMs(start)
		span.SetAttr("cache", "hit")
		e.observe(resultType(&res), "hit", start, &res)
		return &res, nil
	}

	_, lookupSpan := tracing.StartChildSpan(ctx, "index.lookup")
	entries := e.index.Lookup(plan.Needle)
	lookupSpan.SetAttr("entries", len(entries))
	lookupSpan.End()

	_, rankSpan := tracing.StartChildSpan(ctx, "rank")
	groups, total := Rank(plan.Needle, entries, limit)
	rankSpan.SetAttr("groups", total)
	rankSpan.End()

	res := &Result{
		Query:       plan.Needle,
		Groups:      groups,
		Truncated:   total > len(groups),
		TotalGroups: total,
		Generation:  generation,
		ShardErrors: shardErrors,
	}
	if res.Groups == nil {
		res.Groups = []Group{}
	}
	e.cache.Add(cacheKey, res)

	out := *res
	out.TookMs = elapsedMs(start)
	e.observe(resultType(&out), "miss", start, &out)
	logger.FromContext(ctx).Debug("search executed",
		"query", plan.Needle,
		"groups", len(out.Groups),
		"total_groups", total,
		"truncated", out.Truncated,
		"generation", generation,
		"took_ms", out.TookMs,
	)
	return &out, nil
}

// ensureLetter merges the shards of letter r into the index unless every one
// of them has already been settled. It returns the shard error count.
func (e *Engine) ensureLetter(ctx context.Context, r rune) (int, error) {
	e.mu.Lock()
	errs, ok := e.settled[r]
	e.mu.Unlock()
	if ok {
		return errs, nil
	}

	loadCtx, span := tracing.StartChildSpan(ctx, "shard.load")
	defer span.End()
	span.SetAttr("letter", symbol.LetterCode(r))
	res := e.loader.LoadLetter(loadCtx, r)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	added := e.index.Merge(res.Entries)
	span.SetAttr("added", added)
	for _, loadErr := range res.Errors {
		e.logger.Warn("shard excluded from search", "letter", string(r), "error", loadErr)
	}
	if res.Settled {
		e.mu.Lock()
		e.settled[r] = len(res.Errors)
		e.mu.Unlock()
	}
	if e.metrics != nil {
		e.metrics.IndexEntries.Set(float64(e.index.Stats().Entries))
	}
	return len(res.Errors), nil
}

// Warm loads the shards for each rune of letters ahead of the first query.
func (e *Engine) Warm(ctx context.Context, letters string) error {
	for _, r := range letters {
		if unicode.IsSpace(r) {
			continue
		}
		lr, ok := symbol.LeadingRune(string(r))
		if !ok {
			continue
		}
		if _, err := e.ensureLetter(ctx, lr); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) observe(kind, cacheStatus string, start time.Time, res *Result) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(kind).Inc()
	e.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	if res == nil {
		return
	}
	e.metrics.SearchResultsCount.Observe(float64(len(res.Groups)))
	if res.Truncated {
		e.metrics.SearchTruncatedTotal.Inc()
	}
	if res.CacheHit {
		e.metrics.ResultCacheHitsTotal.Inc()
	}
}

func resultType(res *Result) string {
	if len(res.Groups) == 0 {
		return "zero_result"
	}
	return "results"
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
