// Command searcher serves symbol search over a generated documentation site.
//
// It loads shards on demand from a local directory or a remote site, answers
// one-shot search and resolve calls, hosts keystroke-driven sessions and
// publishes search analytics either to Kafka or to an in-process aggregator.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/session"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	stack, err := bootstrap.Build(ctx, cfg, m)
	if err != nil {
		slog.Error("failed to build search stack", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	// Analytics: Kafka when enabled, otherwise the aggregator in this
	// process consumes the collector's batches directly.
	var publisher analytics.Publisher
	var aggregator *analytics.Aggregator
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		publisher = producer
		slog.Info("analytics publishing to kafka", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	} else {
		aggregator = analytics.NewAggregator(nil)
		publisher = aggregator
		slog.Info("analytics aggregated in process")
	}
	collector := analytics.NewCollector(publisher, analytics.CollectorConfig{})
	collector.Start(ctx)
	defer collector.Close()

	tracer := tracing.NewTracer(cfg.Tracing.Enabled, cfg.Tracing.SampleRate)
	registry := handler.NewRegistry(func() *session.Controller {
		return session.New(stack.Engine, stack.Resolver, session.Options{
			Debounce: cfg.Session.Debounce,
			Metrics:  m,
			Tracker:  collector,
			Tracer:   tracer,
		})
	}, cfg.Session.MaxSessions, cfg.Session.IdleTimeout, m)
	go registry.RunJanitor(ctx, time.Minute)

	deps := handler.Deps{
		Engine:   stack.Engine,
		Resolver: stack.Resolver,
		Index:    stack.Index,
		Sessions: registry,
		Tracker:  collector,
	}
	if stack.ShardCache != nil {
		deps.Cache = stack.ShardCache
	}
	if len(cfg.Server.AdminKeyHashes) > 0 {
		deps.AdminGuard = middleware.RequireKey(cfg.Server.AdminKeyHashes)
	} else {
		slog.Warn("no admin keys configured, administrative endpoints are open")
	}
	h := handler.New(deps)

	checker := health.NewChecker()
	stack.RegisterHealth(checker)
	if cfg.Metrics.Enabled {
		metrics.NewServer(cfg.Metrics.Port, prometheus.DefaultGatherer, map[string]http.Handler{
			"/health/live":  checker.LiveHandler(),
			"/health/ready": checker.ReadyHandler(),
		}).Run(ctx, cfg.Server.ShutdownTimeout)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	if aggregator != nil {
		analyticsH := analytics.NewHandler(aggregator, nil)
		mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, 10*time.Minute)
	go limiter.RunCleanup(time.Minute, ctx.Done())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	if cfg.Server.RateLimit > 0 {
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	chain = traced(tracer, chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	registry.CloseAll()
	slog.Info("search service stopped")
}

// traced opens a root span per sampled request; the engine hangs its load,
// lookup and rank spans under it.
func traced(tracer *tracing.Tracer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
		span.End()
		span.Log()
	})
}
