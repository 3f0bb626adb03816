package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoader serves letters from memory and records how often each letter
// was requested.
type fakeLoader struct {
	mu      sync.Mutex
	letters map[rune][]symbol.Entry
	errs    map[rune][]error
	settled bool
	calls   map[rune]int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		letters: make(map[rune][]symbol.Entry),
		errs:    make(map[rune][]error),
		settled: true,
		calls:   make(map[rune]int),
	}
}

func (f *fakeLoader) add(entries ...symbol.Entry) {
	for _, e := range entries {
		r, _ := symbol.LeadingRune(e.Key)
		f.letters[r] = append(f.letters[r], e)
	}
}

func (f *fakeLoader) LoadLetter(ctx context.Context, r rune) shard.LetterResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r]++
	if err := ctx.Err(); err != nil {
		return shard.LetterResult{Errors: []error{err}}
	}
	return shard.LetterResult{Entries: f.letters[r], Errors: f.errs[r], Settled: f.settled}
}

func (f *fakeLoader) callCount(r rune) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[r]
}

func entry(key, scope, page, anchor string, cat symbol.Category) symbol.Entry {
	return symbol.Entry{
		Key:         key,
		DisplayName: key,
		Scope:       scope,
		Target:      symbol.Target{PageID: page, Anchor: anchor},
		Category:    cat,
	}
}

func newTestEngine(t *testing.T, loader Loader, maxResults int) *Engine {
	t.Helper()
	e, err := New(loader, symbol.NewIndex(), Options{
		MaxResults: maxResults,
		Metrics:    metrics.New(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return e
}

func keys(res *Result) []string {
	out := make([]string, len(res.Groups))
	for i, g := range res.Groups {
		out[i] = g.Key
	}
	return out
}

func TestSearchScenario(t *testing.T) {
	loader := newFakeLoader()
	loader.add(
		entry("i2c_", "Px4flow_i2c", "pageA", "anchor1", symbol.CategoryVariable),
		entry("idle_timeout", "gps_t", "pageB", "anchor2", symbol.CategoryVariable),
	)
	e := newTestEngine(t, loader, 0)
	ctx := context.Background()

	res, err := e.Search(ctx, "i2c")
	require.NoError(t, err)
	assert.Equal(t, []string{"i2c_"}, keys(res))

	res, err = e.Search(ctx, "id")
	require.NoError(t, err)
	assert.Equal(t, []string{"idle_timeout"}, keys(res))

	res, err = e.Search(ctx, "i")
	require.NoError(t, err)
	assert.Equal(t, []string{"i2c_", "idle_timeout"}, keys(res))
	assert.False(t, res.Truncated)

	assert.Equal(t, 1, loader.callCount('i'), "settled letter is loaded once")
}

func TestSearchEmptyQueryMatchesNothing(t *testing.T) {
	loader := newFakeLoader()
	loader.add(entry("imu", "", "p", "", symbol.CategoryClass))
	e := newTestEngine(t, loader, 0)

	for _, q := range []string{"", "   ", "\t\n"} {
		res, err := e.Search(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, res.Groups)
	}
	assert.Zero(t, loader.callCount('i'))
}

func TestSearchRankingOrder(t *testing.T) {
	loader := newFakeLoader()
	loader.add(
		entry("imu_config", "", "p1", "", symbol.CategoryVariable),
		entry("aimu", "", "p2", "", symbol.CategoryClass),
		entry("imu", "", "p3", "", symbol.CategoryVariable),
		entry("imux", "", "p4", "", symbol.CategoryFunction),
		entry("imuy", "", "p5", "", symbol.CategoryClass),
		entry("mimu", "", "p6", "", symbol.CategoryClass),
	)
	e := newTestEngine(t, loader, 0)

	res, err := e.Search(context.Background(), "imu")
	require.NoError(t, err)
	// exact, then offset 0 by length and category, then later offsets.
	assert.Equal(t, []string{"imu", "imuy", "imux", "imu_config"}, keys(res))
	assert.True(t, res.Groups[0].Exact)

	res, err = e.Search(context.Background(), "mu")
	require.NoError(t, err)
	assert.Equal(t, []string{"mimu"}, keys(res), "only the query's leading-letter partition is searched")
}

func TestSearchGroupsFanOut(t *testing.T) {
	loader := newFakeLoader()
	loader.add(
		entry("ins_", "Navigation", "classNavigation.html", "a1", symbol.CategoryVariable),
		entry("ins_", "Attitude", "classAttitude.html", "a2", symbol.CategoryVariable),
		entry("ins_", "Attitude", "classAttitude.html", "a2", symbol.CategoryVariable),
		entry("ins_", "Attitude", "classAttitude.html", "a3", symbol.CategoryVariable),
		entry("ins_", "Attitude", "classAttitude.html", "a2", symbol.CategoryAll),
	)
	e := newTestEngine(t, loader, 0)

	res, err := e.Search(context.Background(), "ins")
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	g := res.Groups[0]
	require.Len(t, g.Entries, 3, "distinct targets never collapse, exact duplicates do")
	assert.Equal(t, "Attitude", g.Entries[0].Scope)
	assert.Equal(t, "a2", g.Entries[0].Target.Anchor)
	assert.Equal(t, "a3", g.Entries[1].Target.Anchor)
	assert.Equal(t, "Navigation", g.Entries[2].Scope)
	assert.Equal(t, symbol.CategoryVariable, g.Entries[0].Category)
}

func TestSearchMonotonicNarrowing(t *testing.T) {
	loader := newFakeLoader()
	for _, k := range []string{"i", "i2c_", "idle", "idle_timeout", "imu", "ins", "ins_", "itow", "ixi"} {
		loader.add(entry(k, "", "p_"+k, "", symbol.CategoryVariable))
	}
	e := newTestEngine(t, loader, 0)
	ctx := context.Background()

	prev, err := e.Search(ctx, "i")
	require.NoError(t, err)
	for _, q := range []string{"id", "idl", "idle", "idle_"} {
		res, err := e.Search(ctx, q)
		require.NoError(t, err)
		prevKeys := make(map[string]bool)
		for _, k := range keys(prev) {
			prevKeys[k] = true
		}
		for _, k := range keys(res) {
			assert.True(t, prevKeys[k], "%q result %q missing from its prefix query", q, k)
		}
		prev = res
	}
	assert.Equal(t, []string{"idle_timeout"}, keys(prev))
}

func TestSearchStableOrder(t *testing.T) {
	loader := newFakeLoader()
	for i := 0; i < 40; i++ {
		loader.add(entry(fmt.Sprintf("sym%02d", i%17), fmt.Sprintf("S%d", i%5), fmt.Sprintf("p%d", i), "", symbol.Category(i%12)))
	}
	e := newTestEngine(t, loader, 0)

	first, err := e.Search(context.Background(), "sym")
	require.NoError(t, err)
	e.cache.Purge()
	second, err := e.Search(context.Background(), "sym")
	require.NoError(t, err)
	assert.False(t, second.CacheHit)
	assert.Equal(t, first.Groups, second.Groups)
}

func TestSearchTruncates(t *testing.T) {
	loader := newFakeLoader()
	for i := 0; i < 30; i++ {
		loader.add(entry(fmt.Sprintf("var%02d", i), "", "p", fmt.Sprint(i), symbol.CategoryVariable))
	}
	e := newTestEngine(t, loader, 10)

	res, err := e.Search(context.Background(), "var")
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 30, res.TotalGroups)
	require.Len(t, res.Groups, 10)
	assert.Equal(t, "var00", res.Groups[0].Key)
	assert.Equal(t, "var09", res.Groups[9].Key)

	res, err = e.SearchN(context.Background(), "var", 5)
	require.NoError(t, err)
	assert.Len(t, res.Groups, 5)

	res, err = e.SearchN(context.Background(), "var0", 100)
	require.NoError(t, err)
	assert.Len(t, res.Groups, 10)
	assert.False(t, res.Truncated)
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.SearchTruncatedTotal))
}

func TestSearchResultCache(t *testing.T) {
	loader := newFakeLoader()
	loader.add(entry("imu", "", "p", "", symbol.CategoryClass))
	e := newTestEngine(t, loader, 0)
	ctx := context.Background()

	first, err := e.Search(ctx, "imu")
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	second, err := e.Search(ctx, "IMU ")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Groups, second.Groups)

	// A merge bumps the generation, so the cached answer is bypassed.
	e.Index().Merge([]symbol.Entry{entry("imu2", "", "q", "", symbol.CategoryClass)})
	third, err := e.Search(ctx, "imu")
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
	assert.Equal(t, []string{"imu", "imu2"}, keys(third))
}

func TestSearchShardErrorsDegrade(t *testing.T) {
	loader := newFakeLoader()
	loader.add(entry("imu", "", "p", "", symbol.CategoryClass))
	loader.errs['i'] = []error{errors.New("variables_69: parse failure")}
	e := newTestEngine(t, loader, 0)

	res, err := e.Search(context.Background(), "im")
	require.NoError(t, err)
	assert.Equal(t, []string{"imu"}, keys(res))
	assert.Equal(t, 1, res.ShardErrors)

	res, err = e.Search(context.Background(), "imu")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ShardErrors)
}

func TestSearchUnsettledLetterIsRetried(t *testing.T) {
	loader := newFakeLoader()
	loader.settled = false
	loader.add(entry("imu", "", "p", "", symbol.CategoryClass))
	e := newTestEngine(t, loader, 0)

	_, err := e.Search(context.Background(), "i")
	require.NoError(t, err)
	_, err = e.Search(context.Background(), "im")
	require.NoError(t, err)
	assert.Equal(t, 2, loader.callCount('i'))
	assert.Equal(t, 1, e.Index().Stats().Entries)
}

func TestSearchCancelled(t *testing.T) {
	loader := newFakeLoader()
	e := newTestEngine(t, loader, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Search(ctx, "imu")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWarm(t *testing.T) {
	loader := newFakeLoader()
	loader.add(entry("imu", "", "p", "", symbol.CategoryClass), entry("x", "", "p", "", symbol.CategoryClass))
	e := newTestEngine(t, loader, 0)

	require.NoError(t, e.Warm(context.Background(), "iX "))
	assert.Equal(t, 1, loader.callCount('i'))
	assert.Equal(t, 1, loader.callCount('x'))
	assert.Equal(t, 2, e.Index().Stats().Entries)
}

func BenchmarkSearch(b *testing.B) {
	loader := newFakeLoader()
	for i := 0; i < 5000; i++ {
		loader.add(entry(fmt.Sprintf("item_%d", i), fmt.Sprintf("Scope%d", i%50), "p", fmt.Sprint(i), symbol.Category(i%12)))
	}
	e, err := New(loader, symbol.NewIndex(), Options{CacheSize: 1})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	queries := []string{"i", "it", "ite", "item", "item_", "item_4", "item_42"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Search(ctx, queries[i%len(queries)]); err != nil {
			b.Fatal(err)
		}
	}
}
