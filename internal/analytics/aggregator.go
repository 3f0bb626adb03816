package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches         int64        `json:"total_searches"`
	CacheHits             int64        `json:"cache_hits"`
	CacheMisses           int64        `json:"cache_misses"`
	ZeroResultCount       int64        `json:"zero_result_count"`
	TruncatedCount        int64        `json:"truncated_count"`
	DegradedSearches      int64        `json:"degraded_searches"`
	Navigations           int64        `json:"navigations"`
	UnresolvedNavigations int64        `json:"unresolved_navigations"`
	Sessions              int64        `json:"sessions"`
	AvgLatencyMs          float64      `json:"avg_latency_ms"`
	P50LatencyMs          float64      `json:"p50_latency_ms"`
	P95LatencyMs          float64      `json:"p95_latency_ms"`
	P99LatencyMs          float64      `json:"p99_latency_ms"`
	TopQueries            []QueryCount `json:"top_queries"`
	ZeroResultQueries     []QueryCount `json:"zero_result_queries"`
	TopSymbols            []QueryCount `json:"top_symbols"`
	QueriesPerMinute      float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search and navigation events into rolling statistics.
type Aggregator struct {
	mu                sync.RWMutex
	stats             AggregatedStats
	latencies         []float64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	symbolCounts      map[string]int64
	sessions          map[string]struct{}
	startTime         time.Time
	now               func() time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator. consumer may be nil when events are
// delivered in-process through PublishBatch.
func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		latencies:         make([]float64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		symbolCounts:      make(map[string]int64),
		sessions:          make(map[string]struct{}),
		startTime:         time.Now(),
		now:               time.Now,
		consumer:          consumer,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Start consumes events from Kafka until ctx ends.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.consumer == nil {
		<-ctx.Done()
		return nil
	}
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent is the Kafka message handler feeding agg.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := DecodeEvent(value)
		if err != nil {
			// Poison messages are skipped so the partition keeps moving.
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// PublishBatch records events directly, letting the aggregator stand in for
// Kafka in a single-process deployment.
func (a *Aggregator) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, e := range events {
		a.Record(e.Value)
	}
	return nil
}

// Record applies one SearchEvent or NavigateEvent; other values are ignored.
func (a *Aggregator) Record(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearchEvent(e)
	case NavigateEvent:
		a.recordNavigateEvent(e)
	default:
		a.logger.Warn("ignoring unknown analytics event", "type", fmt.Sprintf("%T", event))
	}
}

func (a *Aggregator) recordSearchEvent(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.TotalSearches++
	if event.CacheHit {
		a.stats.CacheHits++
	} else {
		a.stats.CacheMisses++
	}
	if event.Truncated {
		a.stats.TruncatedCount++
	}
	if event.ShardErrors > 0 {
		a.stats.DegradedSearches++
	}
	a.trackSession(event.SessionID)

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.queryCounts[event.Query]++
	if event.TotalGroups == 0 {
		a.stats.ZeroResultCount++
		a.zeroResultQueries[event.Query]++
	}
}

func (a *Aggregator) recordNavigateEvent(event NavigateEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trackSession(event.SessionID)
	if !event.Resolved {
		a.stats.UnresolvedNavigations++
		return
	}
	a.stats.Navigations++
	a.symbolCounts[event.Key]++
}

func (a *Aggregator) trackSession(id string) {
	if id == "" {
		return
	}
	if _, seen := a.sessions[id]; !seen {
		a.sessions[id] = struct{}{}
		a.stats.Sessions++
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	stats.TopSymbols = topN(a.symbolCounts, 10)
	elapsed := a.now().Sub(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
