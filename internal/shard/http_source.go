package shard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/resilience"
)

// maxShardBytes bounds a single shard download.
const maxShardBytes = 16 << 20

// HTTPSource fetches shards from a published documentation site. Transient
// failures are retried with backoff; a circuit breaker stops hammering a site
// that keeps failing.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewHTTPSource fetches shards below baseURL. onBreakerChange, when non-nil,
// observes circuit breaker transitions.
func NewHTTPSource(baseURL string, timeout time.Duration, attempts int, onBreakerChange func(string, resilience.State)) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retry: resilience.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
		},
		breaker: resilience.NewCircuitBreaker("shard-http", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
			OnStateChange:    onBreakerChange,
		}),
		logger: slog.Default().With("component", "shard-http-source"),
	}
}

func (s *HTTPSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	shardURL := s.baseURL + "/" + url.PathEscape(name)
	var data []byte
	notFound := false
	err := resilience.Retry(ctx, "shard-fetch", s.retry, func() error {
		// A client error means the origin answered, so it counts as a
		// success for the breaker and is reported after Execute.
		var clientErr error
		err := s.breaker.Execute(func() error {
			body, status, err := s.get(ctx, shardURL)
			if err != nil {
				return err
			}
			switch {
			case status == http.StatusNotFound:
				notFound = true
				return nil
			case status >= 400 && status < 500 && status != http.StatusTooManyRequests:
				clientErr = fmt.Errorf("fetching %s: unexpected status %d", shardURL, status)
				return nil
			case status < 200 || status >= 300:
				return fmt.Errorf("fetching %s: unexpected status %d", shardURL, status)
			}
			data = body
			return nil
		})
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return resilience.Permanent(err)
		}
		if err != nil {
			return err
		}
		return resilience.Permanent(clientErr)
	})
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s.logger.Debug("shard fetched", "url", shardURL, "bytes", len(data))
	return data, nil
}

func (s *HTTPSource) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxShardBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return body, resp.StatusCode, nil
}

// BreakerState exposes the circuit breaker state for health checks.
func (s *HTTPSource) BreakerState() resilience.State {
	return s.breaker.GetState()
}

func (s *HTTPSource) String() string {
	return "http:" + s.baseURL
}
