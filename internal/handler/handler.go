// Package handler exposes the search engine over HTTP: one-shot search and
// resolve calls, stateful keystroke sessions and index introspection.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/session"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/middleware"
)

// maxWait bounds how long a session request waits for dispatched searches.
const maxWait = 5 * time.Second

type Searcher interface {
	SearchN(ctx context.Context, raw string, limit int) (*query.Result, error)
	MaxResults() int
}

type Resolver interface {
	Resolve(target symbol.Target) (string, error)
}

// ShardCache is the remote shard blob cache, when one is configured.
type ShardCache interface {
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context) (int64, error)
}

// IndexStats reports what the index and loader hold.
type IndexStats interface {
	Stats() symbol.Stats
	Letters() []rune
}

type Deps struct {
	Engine   Searcher
	Resolver Resolver
	Index    IndexStats
	Sessions *Registry
	// Optional.
	Tracker session.Tracker
	Cache   ShardCache
	// AdminGuard wraps administrative routes such as cache invalidation.
	AdminGuard func(http.Handler) http.Handler
}

type Handler struct {
	engine   Searcher
	resolver Resolver
	index    IndexStats
	sessions *Registry
	tracker  session.Tracker
	cache    ShardCache
	admin    func(http.Handler) http.Handler
	logger   *slog.Logger
}

func New(deps Deps) *Handler {
	return &Handler{
		engine:   deps.Engine,
		resolver: deps.Resolver,
		index:    deps.Index,
		sessions: deps.Sessions,
		tracker:  deps.Tracker,
		cache:    deps.Cache,
		admin:    deps.AdminGuard,
		logger:   logger.WithComponent("search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/resolve", h.Resolve)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	var invalidate http.Handler = http.HandlerFunc(h.CacheInvalidate)
	if h.admin != nil {
		invalidate = h.admin(invalidate)
	}
	mux.Handle("POST /api/v1/cache/invalidate", invalidate)
	mux.HandleFunc("POST /api/v1/sessions", h.CreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", h.GetSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/keys", h.SessionKeys)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.DeleteSession)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	q := r.URL.Query().Get("q")
	limit := h.engine.MaxResults()
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.engine.MaxResults())
	}

	result, err := h.engine.SearchN(ctx, q, limit)
	if err != nil {
		log.Warn("search abandoned", "query", q, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "search cancelled")
		return
	}

	log.Info("search completed",
		"query", result.Query,
		"groups", len(result.Groups),
		"total_groups", result.TotalGroups,
		"cache_hit", result.CacheHit,
		"shard_errors", result.ShardErrors,
		"took_ms", result.TookMs,
	)
	if h.tracker != nil && result.Query != "" {
		h.tracker.TrackSearch(analytics.SearchEvent{
			RequestID:   middleware.GetRequestID(ctx),
			Query:       result.Query,
			Groups:      len(result.Groups),
			TotalGroups: result.TotalGroups,
			Truncated:   result.Truncated,
			CacheHit:    result.CacheHit,
			ShardErrors: result.ShardErrors,
			LatencyMs:   result.TookMs,
		})
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	target := symbol.Target{
		PageID: r.URL.Query().Get("page"),
		Anchor: r.URL.Query().Get("anchor"),
	}
	if target.PageID == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'page' is required")
		return
	}
	url, err := h.resolver.Resolve(target)
	if h.tracker != nil {
		h.tracker.TrackNavigate(analytics.NavigateEvent{
			RequestID: middleware.GetRequestID(r.Context()),
			PageID:    target.PageID,
			Anchor:    target.Anchor,
			Resolved:  err == nil,
		})
	}
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	letters := h.index.Letters()
	codes := make([]string, len(letters))
	for i, l := range letters {
		codes[i] = string(l)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"index":    h.index.Stats(),
		"letters":  codes,
		"sessions": h.sessions.Len(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "shard caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "deleted": deleted})
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	c, err := h.sessions.Create()
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	logger.FromContext(r.Context()).Info("session created", "session_id", c.ID())
	h.writeJSON(w, http.StatusCreated, c.Snapshot())
}

// GetSession returns the session snapshot. With ?wait=true it first waits
// for dispatched searches to finish.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	c, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	if wantWait(r) {
		h.wait(r.Context(), c)
	}
	h.writeJSON(w, http.StatusOK, c.Snapshot())
}

type keyRequest struct {
	// Text replaces the query; it wins over Key.
	Text *string `json:"text"`
	Key  string  `json:"key"`
}

type keyResponse struct {
	Session    session.Snapshot    `json:"session"`
	Navigation *session.Navigation `json:"navigation,omitempty"`
}

func (h *Handler) SessionKeys(w http.ResponseWriter, r *http.Request) {
	c, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	var req keyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var nav *session.Navigation
	switch {
	case req.Text != nil:
		err = c.Type(*req.Text)
	case req.Key != "":
		var key session.Key
		key, err = session.ParseKey(req.Key)
		if err == nil {
			nav, err = c.Press(key)
		}
	default:
		err = apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "one of 'text' or 'key' is required")
	}
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	if wantWait(r) {
		h.wait(r.Context(), c)
	}
	h.writeJSON(w, http.StatusOK, keyResponse{Session: c.Snapshot(), Navigation: nav})
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Remove(r.PathValue("id")); err != nil {
		h.writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func wantWait(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return v
}

func (h *Handler) wait(ctx context.Context, c *session.Controller) {
	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case <-c.Settled():
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
