package navigation

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
)

// UnresolvedTargetError reports a target whose page is not in the manifest.
// Callers should treat the result as non-navigable.
type UnresolvedTargetError struct {
	Target symbol.Target
}

func (e *UnresolvedTargetError) Error() string {
	return fmt.Sprintf("page %q is not in the site manifest", e.Target.PageID)
}

func (e *UnresolvedTargetError) Is(target error) bool {
	return target == apperrors.ErrUnresolvedTarget
}

// Resolver maps targets to URLs against the current manifest. The manifest
// can be replaced at runtime; each Resolve sees one consistent manifest.
type Resolver struct {
	manifest atomic.Pointer[manifestHolder]
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type manifestHolder struct {
	m Manifest
}

func NewResolver(m Manifest, metrics *metrics.Metrics) *Resolver {
	r := &Resolver{
		metrics: metrics,
		logger:  slog.Default().With("component", "navigation-resolver"),
	}
	r.manifest.Store(&manifestHolder{m: m})
	return r
}

// SetManifest swaps in a reloaded manifest.
func (r *Resolver) SetManifest(m Manifest) {
	r.manifest.Store(&manifestHolder{m: m})
	r.logger.Info("site manifest replaced")
}

// Resolve returns the site URL for target, with the anchor as fragment.
func (r *Resolver) Resolve(target symbol.Target) (string, error) {
	base, ok := r.manifest.Load().m.PageURL(target.PageID)
	if !ok || target.PageID == "" {
		r.observe("unresolved")
		return "", &UnresolvedTargetError{Target: target}
	}
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base = base[:i]
	}
	r.observe("resolved")
	if target.Anchor == "" {
		return base, nil
	}
	return base + "#" + (&url.URL{Fragment: target.Anchor}).EscapedFragment(), nil
}

func (r *Resolver) observe(outcome string) {
	if r.metrics != nil {
		r.metrics.NavigationsTotal.WithLabelValues(outcome).Inc()
	}
}
