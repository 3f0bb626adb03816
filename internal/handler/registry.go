package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/session"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
)

// SessionFactory builds a new, unregistered session.
type SessionFactory func() *session.Controller

// Registry tracks the open sessions of the HTTP API. Sessions idle for
// longer than the idle timeout are closed by Sweep.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session.Controller
	factory  SessionFactory
	max      int
	idle     time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger
}

// NewRegistry creates a Registry. max <= 0 means unlimited sessions and
// idle <= 0 disables expiry.
func NewRegistry(factory SessionFactory, max int, idle time.Duration, m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]*session.Controller),
		factory:  factory,
		max:      max,
		idle:     idle,
		metrics:  m,
		now:      time.Now,
		logger:   slog.Default().With("component", "session-registry"),
	}
}

func (r *Registry) Create() (*session.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.sessions) >= r.max {
		return nil, apperrors.Newf(apperrors.ErrSessionLimit, http.StatusTooManyRequests, "at most %d concurrent sessions", r.max)
	}
	c := r.factory()
	r.sessions[c.ID()] = c
	r.updateGauge()
	r.logger.Debug("session opened", "session_id", c.ID(), "open", len(r.sessions))
	return c, nil
}

func (r *Registry) Get(id string) (*session.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, apperrors.ErrSessionNotFound)
	}
	return c, nil
}

// Remove unregisters and closes a session.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	c, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		r.updateGauge()
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %q: %w", id, apperrors.ErrSessionNotFound)
	}
	c.Close()
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes every session idle past the timeout and returns how many.
func (r *Registry) Sweep() int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idle)
	var expired []*session.Controller
	r.mu.Lock()
	for id, c := range r.sessions {
		if c.LastActive().Before(cutoff) {
			expired = append(expired, c)
			delete(r.sessions, id)
		}
	}
	r.updateGauge()
	r.mu.Unlock()

	for _, c := range expired {
		c.Close()
	}
	if len(expired) > 0 {
		r.logger.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// RunJanitor sweeps every interval until ctx ends, then closes all sessions.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			r.CloseAll()
			return
		}
	}
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*session.Controller, 0, len(r.sessions))
	for id, c := range r.sessions {
		all = append(all, c)
		delete(r.sessions, id)
	}
	r.updateGauge()
	r.mu.Unlock()
	for _, c := range all {
		c.Close()
	}
}

func (r *Registry) updateGauge() {
	if r.metrics != nil {
		r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
}
