// Command loadtest simulates users typing symbol names into the search box.
//
// Each worker picks a symbol and requests every prefix of it in turn, the way
// a search-as-you-type UI does, either as one-shot searches or through a
// session's keystroke endpoint.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Sessions    bool
	Symbols     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	symbolsTyped  atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent typists")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	sessions := flag.Bool("sessions", false, "type through session keystroke endpoints instead of one-shot searches")
	flag.Parse()

	symbols := []string{
		"i2c_",
		"idle_timeout",
		"imu_update",
		"ins_",
		"get_position",
		"gps_t",
		"kalman_filter",
		"mavlink_send",
		"px4flow_i2c",
		"sonar_read",
		"attitude_estimator",
		"baro_calibrate",
		"motor_mix",
		"rc_channels",
		"uart_write",
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Sessions:    *sessions,
		Symbols:     symbols,
	}

	fmt.Println("=== Symbol Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Mode:        %s\n", mode(cfg.Sessions))
	fmt.Printf("Symbols:     %d unique\n", len(cfg.Symbols))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func mode(sessions bool) string {
	if sessions {
		return "sessions"
	}
	return "one-shot search"
}

// prefixes returns every non-empty prefix of s, shortest first.
func prefixes(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, len(s))
	for i := range s {
		if i > 0 {
			out = append(out, s[:i])
		}
	}
	return append(out, s)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			symbolIdx := workerID
			t := &typist{client: client, cfg: cfg, stats: stats}

			for ctx.Err() == nil {
				symbol := cfg.Symbols[symbolIdx%len(cfg.Symbols)]
				symbolIdx++
				if cfg.Sessions {
					t.typeInSession(ctx, symbol)
				} else {
					t.typeSearches(ctx, symbol)
				}
				stats.symbolsTyped.Add(1)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

type typist struct {
	client *http.Client
	cfg    Config
	stats  *Stats
}

func (t *typist) typeSearches(ctx context.Context, symbol string) {
	for _, prefix := range prefixes(symbol) {
		if ctx.Err() != nil {
			return
		}
		searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&limit=10", t.cfg.BaseURL, url.QueryEscape(prefix))
		var body struct {
			CacheHit bool `json:"cache_hit"`
		}
		if t.do(ctx, http.MethodGet, searchURL, nil, &body) && body.CacheHit {
			t.stats.cacheHits.Add(1)
		}
	}
}

func (t *typist) typeInSession(ctx context.Context, symbol string) {
	var created struct {
		ID string `json:"id"`
	}
	if !t.do(ctx, http.MethodPost, t.cfg.BaseURL+"/api/v1/sessions", nil, &created) || created.ID == "" {
		return
	}
	base := t.cfg.BaseURL + "/api/v1/sessions/" + created.ID
	defer t.do(context.Background(), http.MethodDelete, base, nil, nil)

	for _, prefix := range prefixes(symbol) {
		if ctx.Err() != nil {
			return
		}
		t.do(ctx, http.MethodPost, base+"/keys", map[string]string{"text": prefix}, nil)
	}
	t.do(ctx, http.MethodPost, base+"/keys?wait=true", map[string]string{"key": "down"}, nil)
}

// do sends one request and records it. It reports whether the response was
// a success; out, when non-nil, receives the decoded body.
func (t *typist) do(ctx context.Context, method, rawURL string, in, out any) bool {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			panic(fmt.Sprintf("encoding request: %v", err))
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			t.stats.RecordRequest(duration, 0, err)
		}
		return false
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	io.Copy(io.Discard, resp.Body)

	t.stats.RecordRequest(duration, resp.StatusCode, nil)
	return resp.StatusCode < 300
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Symbols Typed:   %d\n", stats.symbolsTyped.Load())
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)
	fmt.Printf("Cache Hits:      %d\n", stats.cacheHits.Load())

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
