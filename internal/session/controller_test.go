package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/navigation"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSearcher answers from canned results. Queries with a gate block until
// the gate is closed and ignore cancellation, like a shard load that cannot
// be interrupted.
type fakeSearcher struct {
	mu      sync.Mutex
	results map[string]*query.Result
	gates   map[string]chan struct{}
	calls   []string
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		results: make(map[string]*query.Result),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *fakeSearcher) set(q string, keys ...string) {
	res := &query.Result{Query: q, Groups: []query.Group{}, TotalGroups: len(keys)}
	for _, k := range keys {
		res.Groups = append(res.Groups, query.Group{
			Key: k,
			Entries: []symbol.Entry{
				{Key: k, DisplayName: k, Scope: "A", Target: symbol.Target{PageID: k + "_a.html", Anchor: "x"}},
				{Key: k, DisplayName: k, Scope: "B", Target: symbol.Target{PageID: k + "_b.html", Anchor: "y"}},
			},
		})
	}
	f.mu.Lock()
	f.results[q] = res
	f.mu.Unlock()
}

func (f *fakeSearcher) gate(q string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[q] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeSearcher) Search(ctx context.Context, raw string) (*query.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, raw)
	gate := f.gates[raw]
	res, ok := f.results[raw]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if !ok {
		return &query.Result{Query: raw, Groups: []query.Group{}}, nil
	}
	return res, nil
}

func (f *fakeSearcher) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type mapResolver map[string]string

func (m mapResolver) Resolve(t symbol.Target) (string, error) {
	u, ok := m[t.PageID]
	if !ok {
		return "", &navigation.UnresolvedTargetError{Target: t}
	}
	return u + "#" + t.Anchor, nil
}

type recordingTracker struct {
	mu       sync.Mutex
	searches []analytics.SearchEvent
	navs     []analytics.NavigateEvent
}

func (r *recordingTracker) TrackSearch(e analytics.SearchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches = append(r.searches, e)
}

func (r *recordingTracker) TrackNavigate(e analytics.NavigateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navs = append(r.navs, e)
}

func shownFor(c *Controller, q string) func() bool {
	return func() bool {
		s := c.Snapshot()
		return s.Query == q && (s.State == ResultsShown || s.State == NoResults)
	}
}

func TestLastQueryWins(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	searcher := newFakeSearcher()
	searcher.set("i", "i2c_", "idle_timeout")
	searcher.set("im", "imu")
	release := searcher.gate("i")
	c := New(searcher, mapResolver{}, Options{Metrics: m})
	defer c.Close()

	require.NoError(t, c.Type("i"))
	require.NoError(t, c.Type("im"))
	require.Eventually(t, shownFor(c, "im"), time.Second, time.Millisecond)

	close(release)
	c.Wait()

	s := c.Snapshot()
	assert.Equal(t, "im", s.Query)
	assert.Equal(t, ResultsShown, s.State)
	require.Len(t, s.Groups, 1)
	assert.Equal(t, "imu", s.Groups[0].Key)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleResultsDropped))
	assert.ElementsMatch(t, []string{"i", "im"}, searcher.callLog())
}

func TestTypeNeverBlocks(t *testing.T) {
	searcher := newFakeSearcher()
	release := searcher.gate("slow")
	c := New(searcher, mapResolver{}, Options{})

	done := make(chan struct{})
	go func() {
		_ = c.Type("slow")
		_ = c.Type("slow")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Type blocked on an in-flight search")
	}
	assert.Equal(t, Typing, c.Snapshot().State)
	close(release)
	c.Close()
}

func TestWhitespaceReturnsToIdle(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.set("imu", "imu")
	c := New(searcher, mapResolver{}, Options{})
	defer c.Close()

	require.NoError(t, c.Type("imu"))
	c.Wait()
	require.Equal(t, ResultsShown, c.Snapshot().State)

	require.NoError(t, c.Type("   "))
	s := c.Snapshot()
	assert.Equal(t, Idle, s.State)
	assert.Empty(t, s.Groups)
	assert.Equal(t, -1, s.Selected)
	assert.Equal(t, []string{"imu"}, searcher.callLog())
}

func TestNoResults(t *testing.T) {
	c := New(newFakeSearcher(), mapResolver{}, Options{})
	defer c.Close()
	require.NoError(t, c.Type("zzz"))
	c.Wait()
	s := c.Snapshot()
	assert.Equal(t, NoResults, s.State)
	assert.Equal(t, -1, s.Selected)

	_, err := c.Commit()
	assert.ErrorIs(t, err, apperrors.ErrNoSelection)
}

func TestSelectionClamps(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.set("g", "get", "gps", "gyro")
	c := New(searcher, mapResolver{}, Options{})
	defer c.Close()
	require.NoError(t, c.Type("g"))
	c.Wait()

	c.Prev()
	assert.Equal(t, 0, c.Snapshot().Selected)
	for i := 0; i < 5; i++ {
		c.Next()
	}
	assert.Equal(t, 2, c.Snapshot().Selected)

	c.PrevMember()
	assert.Equal(t, 0, c.Snapshot().Member)
	c.NextMember()
	c.NextMember()
	s := c.Snapshot()
	assert.Equal(t, 1, s.Member)
	e, ok := s.SelectedEntry()
	require.True(t, ok)
	assert.Equal(t, "gyro", e.Key)
	assert.Equal(t, "B", e.Scope)

	c.Prev()
	s = c.Snapshot()
	assert.Equal(t, 1, s.Selected)
	assert.Equal(t, 0, s.Member, "changing group resets the member cursor")
}

func TestCommitNavigates(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.set("imu", "imu")
	tracker := &recordingTracker{}
	c := New(searcher, mapResolver{"imu_b.html": "/docs/imu_b.html"}, Options{Tracker: tracker})
	defer c.Close()
	require.NoError(t, c.Type("imu"))
	c.Wait()

	c.NextMember()
	nav, err := c.Commit()
	require.NoError(t, err)
	assert.Equal(t, "/docs/imu_b.html#y", nav.URL)
	assert.Equal(t, "B", nav.Entry.Scope)

	s := c.Snapshot()
	assert.Equal(t, Navigated, s.State)
	assert.Equal(t, nav, s.Navigation)

	require.Len(t, tracker.searches, 1)
	assert.Equal(t, c.ID(), tracker.searches[0].SessionID)
	require.Len(t, tracker.navs, 1)
	assert.True(t, tracker.navs[0].Resolved)
	assert.Equal(t, "imu_b.html", tracker.navs[0].PageID)
}

func TestUnresolvedCommitLeavesStateUntouched(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.set("imu", "imu")
	tracker := &recordingTracker{}
	c := New(searcher, mapResolver{}, Options{Tracker: tracker})
	defer c.Close()
	require.NoError(t, c.Type("imu"))
	c.Wait()
	c.NextMember()
	before := c.Snapshot()

	_, err := c.Commit()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnresolvedTarget)
	assert.Equal(t, before, c.Snapshot())
	require.Len(t, tracker.navs, 1)
	assert.False(t, tracker.navs[0].Resolved)
}

func TestEscapeDiscardsInFlight(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	searcher := newFakeSearcher()
	searcher.set("i", "imu")
	release := searcher.gate("i")
	c := New(searcher, mapResolver{}, Options{Metrics: m})
	defer c.Close()

	require.NoError(t, c.Type("i"))
	c.Escape()
	close(release)
	c.Wait()

	s := c.Snapshot()
	assert.Equal(t, Idle, s.State)
	assert.Equal(t, "", s.Query)
	assert.Empty(t, s.Groups)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleResultsDropped))
}

func TestDebounceCoalescesKeystrokes(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.set("imu", "imu")
	c := New(searcher, mapResolver{}, Options{Debounce: 200 * time.Millisecond})
	defer c.Close()

	require.NoError(t, c.Type("i"))
	require.NoError(t, c.Type("im"))
	require.NoError(t, c.Type("imu"))
	c.Wait()

	assert.Equal(t, []string{"imu"}, searcher.callLog())
	assert.Equal(t, ResultsShown, c.Snapshot().State)
}

func TestCloseRejectsInput(t *testing.T) {
	searcher := newFakeSearcher()
	release := searcher.gate("i")
	c := New(searcher, mapResolver{}, Options{})
	require.NoError(t, c.Type("i"))

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	close(release)
	<-closed
	c.Close()

	assert.Equal(t, Closed, c.Snapshot().State)
	assert.ErrorIs(t, c.Type("x"), apperrors.ErrSessionNotFound)
	_, err := c.Commit()
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	_, err = c.Press(KeyDown)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestPress(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.set("g", "get", "gps")
	c := New(searcher, mapResolver{"gps_a.html": "/gps_a.html"}, Options{})
	defer c.Close()
	require.NoError(t, c.Type("g"))
	c.Wait()

	for _, k := range []Key{KeyDown, KeyRight, KeyLeft} {
		nav, err := c.Press(k)
		require.NoError(t, err)
		assert.Nil(t, nav)
	}
	nav, err := c.Press(KeyEnter)
	require.NoError(t, err)
	assert.Equal(t, "/gps_a.html#x", nav.URL)

	_, err = c.Press(KeyEscape)
	require.NoError(t, err)
	assert.Equal(t, Idle, c.Snapshot().State)

	_, err = c.Press(Key("tab"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
}

func TestOnUpdateSeesEveryTransition(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.set("imu", "imu")
	var mu sync.Mutex
	var states []State
	c := New(searcher, mapResolver{}, Options{OnUpdate: func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	}})
	require.NoError(t, c.Type("imu"))
	c.Wait()
	c.Escape()
	c.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Typing, ResultsShown, Idle, Closed}, states)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "results", ResultsShown.String())
	assert.Equal(t, "state(42)", State(42).String())
	text, err := NoResults.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "no_results", string(text))

	_, err = ParseKey("enter")
	assert.NoError(t, err)
	_, err = ParseKey("space")
	assert.Error(t, err)
}

// staticLoader hands the engine a fixed set of entries per letter.
type staticLoader map[rune][]symbol.Entry

func (l staticLoader) LoadLetter(ctx context.Context, r rune) shard.LetterResult {
	return shard.LetterResult{Entries: l[r], Settled: true}
}

func TestSessionOverEngine(t *testing.T) {
	engine, err := query.New(staticLoader{
		'i': {
			{Key: "i2c_", DisplayName: "i2c_", Scope: "Px4flow_i2c", Target: symbol.Target{PageID: "classPx4flow__i2c.html", Anchor: "anchor1"}, Category: symbol.CategoryVariable},
			{Key: "idle_timeout", DisplayName: "idle_timeout", Scope: "gps_t", Target: symbol.Target{PageID: "structgps__t.html", Anchor: "anchor2"}, Category: symbol.CategoryVariable},
		},
	}, symbol.NewIndex(), query.Options{})
	require.NoError(t, err)
	resolver := navigation.NewResolver(navigation.NewStaticManifest(map[string]string{
		"structgps__t.html": "/docs/structgps__t.html",
	}), nil)

	c := New(engine, resolver, Options{})
	defer c.Close()

	require.NoError(t, c.Type("i"))
	c.Wait()
	s := c.Snapshot()
	require.Len(t, s.Groups, 2)
	assert.Equal(t, "i2c_", s.Groups[0].Key)
	assert.Equal(t, "idle_timeout", s.Groups[1].Key)

	// i2c_'s page is missing from the manifest.
	_, err = c.Commit()
	assert.True(t, errors.Is(err, apperrors.ErrUnresolvedTarget))
	assert.Equal(t, s, c.Snapshot())

	c.Next()
	nav, err := c.Commit()
	require.NoError(t, err)
	assert.Equal(t, "/docs/structgps__t.html#anchor2", nav.URL)

	require.NoError(t, c.Type("id"))
	c.Wait()
	s = c.Snapshot()
	require.Len(t, s.Groups, 1)
	assert.Equal(t, "idle_timeout", s.Groups[0].Key)
}

func TestStateRoundTrip(t *testing.T) {
	var s State
	require.NoError(t, s.UnmarshalText([]byte("navigated")))
	assert.Equal(t, Navigated, s)
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
}

func TestWaitWhileTyping(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.set("ab", "abs")
	c := New(searcher, mapResolver{}, Options{Debounce: time.Millisecond})
	defer c.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 200 {
			_ = c.Type("ab")
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			c.Wait()
		}
	}()
	wg.Wait()

	c.Wait()
	select {
	case <-c.Settled():
	default:
		t.Fatal("searches still in flight after Wait")
	}
	assert.Eventually(t, shownFor(c, "ab"), time.Second, 5*time.Millisecond)
}

func TestSettledTracksInFlightSearches(t *testing.T) {
	searcher := newFakeSearcher()
	release := searcher.gate("i")
	c := New(searcher, mapResolver{}, Options{})
	defer c.Close()

	select {
	case <-c.Settled():
	default:
		t.Fatal("new session should be settled")
	}

	require.NoError(t, c.Type("i"))
	settled := c.Settled()
	select {
	case <-settled:
		t.Fatal("settled while a search is blocked")
	default:
	}
	close(release)
	select {
	case <-settled:
	case <-time.After(time.Second):
		t.Fatal("search finished but session never settled")
	}
}
