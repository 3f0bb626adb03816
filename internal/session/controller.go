// Package session drives one interactive search: it accepts keystrokes,
// dispatches searches without ever blocking the caller, applies only the
// newest query's results and tracks the keyboard selection over them.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/tracing"
	"github.com/google/uuid"
)

// Searcher runs one query. *query.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, raw string) (*query.Result, error)
}

// Resolver turns a target into a URL. *navigation.Resolver satisfies it.
type Resolver interface {
	Resolve(target symbol.Target) (string, error)
}

// Tracker receives analytics events. *analytics.Collector satisfies it.
type Tracker interface {
	TrackSearch(analytics.SearchEvent)
	TrackNavigate(analytics.NavigateEvent)
}

type Options struct {
	// Debounce delays dispatch so that a burst of keystrokes runs one search.
	Debounce time.Duration
	Metrics  *metrics.Metrics
	Tracker  Tracker
	Tracer   *tracing.Tracer
	// OnUpdate receives every state change. It runs with the controller
	// locked and must not call back into it.
	OnUpdate func(Snapshot)
}

// Controller owns the state of one session. All methods are safe for
// concurrent use.
type Controller struct {
	id       string
	searcher Searcher
	resolver Resolver
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	// base is cancelled on Close and parents every dispatched search.
	base       context.Context
	cancelBase context.CancelFunc

	mu         sync.Mutex
	state      State
	query      string
	seq        uint64
	result     *query.Result
	selected   int
	member     int
	navigation *Navigation
	cancel     context.CancelFunc
	timer      *time.Timer
	lastActive time.Time
	// pending counts dispatched searches that have not returned; settled is
	// closed whenever pending is zero.
	pending int
	settled chan struct{}
}

func New(searcher Searcher, resolver Resolver, opts Options) *Controller {
	id := uuid.NewString()
	base, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:         id,
		searcher:   searcher,
		resolver:   resolver,
		opts:       opts,
		logger:     slog.Default().With("component", "session", "session_id", id),
		now:        time.Now,
		base:       base,
		cancelBase: cancel,
		selected:   -1,
		member:     -1,
		settled:    make(chan struct{}),
	}
	close(c.settled)
	c.lastActive = c.now()
	return c
}

func (c *Controller) ID() string {
	return c.id
}

// Type replaces the query text. It never waits for the search: the previous
// query is superseded and a new one is dispatched in the background.
// Whitespace-only text returns the session to Idle.
func (c *Controller) Type(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.touch()
	c.supersede()
	c.query = text
	c.navigation = nil
	if strings.TrimSpace(text) == "" {
		c.clearResults()
		c.state = Idle
		c.notify()
		return nil
	}
	c.state = Typing

	seq := c.seq
	ctx, cancel := context.WithCancel(c.base)
	c.cancel = cancel
	c.begin()
	run := func() {
		defer c.finish()
		c.run(ctx, seq, text)
	}
	if c.opts.Debounce > 0 {
		c.timer = time.AfterFunc(c.opts.Debounce, run)
	} else {
		go run()
	}
	c.notify()
	return nil
}

// run executes one dispatched search and applies it if it is still current.
func (c *Controller) run(ctx context.Context, seq uint64, text string) {
	ctx, span := c.opts.Tracer.Start(ctx, "session.search")
	span.SetAttr("session_id", c.id)
	defer func() {
		span.End()
		span.Log()
	}()

	start := c.now()
	res, err := c.searcher.Search(ctx, text)

	c.mu.Lock()
	if seq != c.seq || c.state == Closed {
		c.mu.Unlock()
		span.SetAttr("stale", true)
		if c.opts.Metrics != nil {
			c.opts.Metrics.StaleResultsDropped.Inc()
		}
		c.logger.Debug("dropping superseded results", "query", text, "seq", seq)
		return
	}
	if err != nil {
		// Search only fails when ctx is cancelled, which for a current query
		// means the session is shutting down; show nothing rather than fail.
		c.logger.Warn("search failed", "query", text, "error", err)
		res = &query.Result{Query: text, Groups: []query.Group{}}
	}
	c.result = res
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.timer = nil
	if len(res.Groups) > 0 {
		c.state = ResultsShown
		c.selected, c.member = 0, 0
	} else {
		c.state = NoResults
		c.selected, c.member = -1, -1
	}
	c.notify()
	c.mu.Unlock()

	if c.opts.Tracker != nil && err == nil {
		c.opts.Tracker.TrackSearch(analytics.SearchEvent{
			SessionID:   c.id,
			Query:       res.Query,
			Groups:      len(res.Groups),
			TotalGroups: res.TotalGroups,
			Truncated:   res.Truncated,
			CacheHit:    res.CacheHit,
			ShardErrors: res.ShardErrors,
			LatencyMs:   float64(c.now().Sub(start).Microseconds()) / 1000,
		})
	}
}

// Next moves the selection to the following group, stopping at the last.
func (c *Controller) Next() { c.moveGroup(1) }

// Prev moves the selection to the preceding group, stopping at the first.
func (c *Controller) Prev() { c.moveGroup(-1) }

// NextMember moves within the selected group's definition sites.
func (c *Controller) NextMember() { c.moveMember(1) }

func (c *Controller) PrevMember() { c.moveMember(-1) }

func (c *Controller) moveGroup(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if c.state != ResultsShown {
		return
	}
	next := clamp(c.selected+delta, len(c.result.Groups))
	if next != c.selected {
		c.selected = next
		c.member = 0
		c.notify()
	}
}

func (c *Controller) moveMember(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if c.state != ResultsShown {
		return
	}
	next := clamp(c.member+delta, len(c.result.Groups[c.selected].Entries))
	if next != c.member {
		c.member = next
		c.notify()
	}
}

func clamp(i, n int) int {
	return max(0, min(i, n-1))
}

// Commit resolves the selected entry. On success the session moves to
// Navigated. When the target cannot be resolved the error is returned and
// the session is left exactly as it was.
func (c *Controller) Commit() (*Navigation, error) {
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.touch()
	entry, ok := c.selectedEntry()
	if c.state != ResultsShown || !ok {
		c.mu.Unlock()
		return nil, apperrors.ErrNoSelection
	}
	q := c.result.Query
	url, err := c.resolver.Resolve(entry.Target)
	var nav *Navigation
	if err == nil {
		c.supersede()
		nav = &Navigation{URL: url, Entry: entry}
		c.navigation = nav
		c.state = Navigated
		c.notify()
	}
	c.mu.Unlock()

	if c.opts.Tracker != nil {
		c.opts.Tracker.TrackNavigate(analytics.NavigateEvent{
			SessionID: c.id,
			Query:     q,
			Key:       entry.Key,
			Scope:     entry.Scope,
			PageID:    entry.Target.PageID,
			Anchor:    entry.Target.Anchor,
			Resolved:  err == nil,
		})
	}
	if err != nil {
		c.logger.Info("selected result is not navigable", "key", entry.Key, "page", entry.Target.PageID)
		return nil, err
	}
	return nav, nil
}

// Escape discards the query and any in-flight search and returns to Idle.
func (c *Controller) Escape() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return
	}
	c.touch()
	c.supersede()
	c.query = ""
	c.navigation = nil
	c.clearResults()
	c.state = Idle
	c.notify()
}

// Press applies one keyboard event. Only Enter produces a Navigation.
func (c *Controller) Press(key Key) (*Navigation, error) {
	if err := c.checkOpenLocked(); err != nil {
		return nil, err
	}
	switch key {
	case KeyDown:
		c.Next()
	case KeyUp:
		c.Prev()
	case KeyRight:
		c.NextMember()
	case KeyLeft:
		c.PrevMember()
	case KeyEnter:
		return c.Commit()
	case KeyEscape:
		c.Escape()
	default:
		_, err := ParseKey(string(key))
		return nil, err
	}
	return nil, nil
}

// Close ends the session and waits for dispatched searches to return.
// It is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state != Closed {
		c.supersede()
		c.state = Closed
		c.notify()
	}
	c.mu.Unlock()
	c.cancelBase()
	c.Wait()
}

// Wait blocks until every dispatched search has finished. It is safe to call
// while input keeps arriving; it then returns at the first moment nothing is
// in flight.
func (c *Controller) Wait() {
	<-c.Settled()
}

// Settled returns a channel that is closed once no dispatched search is in
// flight.
func (c *Controller) Settled() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled
}

// begin and finish track in-flight searches; callers of begin hold c.mu.
func (c *Controller) begin() {
	if c.pending == 0 {
		c.settled = make(chan struct{})
	}
	c.pending++
}

func (c *Controller) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishLocked()
}

func (c *Controller) finishLocked() {
	c.pending--
	if c.pending == 0 {
		close(c.settled)
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// LastActive is the time of the most recent user input.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		ID:         c.id,
		State:      c.state,
		Query:      c.query,
		Groups:     []query.Group{},
		Selected:   c.selected,
		Member:     c.member,
		Navigation: c.navigation,
		Seq:        c.seq,
	}
	if c.result != nil {
		s.Groups = c.result.Groups
		s.Truncated = c.result.Truncated
		s.TotalGroups = c.result.TotalGroups
		s.Generation = c.result.Generation
	}
	return s
}

// supersede invalidates the current query: its results will be dropped when
// they arrive and a pending debounced dispatch never runs.
func (c *Controller) supersede() {
	c.seq++
	if c.timer != nil {
		if c.timer.Stop() {
			c.finishLocked()
		}
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) clearResults() {
	c.result = nil
	c.selected, c.member = -1, -1
}

func (c *Controller) selectedEntry() (symbol.Entry, bool) {
	return c.snapshot().SelectedEntry()
}

func (c *Controller) notify() {
	if c.opts.OnUpdate != nil {
		c.opts.OnUpdate(c.snapshot())
	}
}

func (c *Controller) touch() {
	c.lastActive = c.now()
}

func (c *Controller) checkOpen() error {
	if c.state == Closed {
		return fmt.Errorf("session %s is closed: %w", c.id, apperrors.ErrSessionNotFound)
	}
	return nil
}

func (c *Controller) checkOpenLocked() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkOpen()
}
