// Package bootstrap assembles the search stack described by a Config. The
// HTTP service and the command-line client both start from it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/navigation"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/resilience"
)

// Stack is one search session over one documentation site.
type Stack struct {
	Metrics  *metrics.Metrics
	Index    *symbol.Index
	Loader   *shard.Loader
	Engine   *query.Engine
	Resolver *navigation.Resolver
	Manifest *navigation.StaticManifest

	// Set only when the matching backend is configured and reachable.
	ShardCache *shard.CachedSource
	Origin     *shard.HTTPSource
	Redis      *pkgredis.Client
	Postgres   *postgres.Client

	logger *slog.Logger
}

// Build wires sources, loader, index, engine and resolver. Redis is optional:
// when it cannot be reached shard caching is disabled and startup goes on.
func Build(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Stack, error) {
	s := &Stack{
		Metrics: m,
		Index:   symbol.NewIndex(),
		logger:  slog.Default().With("component", "bootstrap"),
	}

	categories, err := parseCategories(cfg.Site.Categories)
	if err != nil {
		return nil, err
	}

	var source shard.Source
	if cfg.Site.ShardURL != "" {
		s.Origin = shard.NewHTTPSource(cfg.Site.ShardURL, cfg.Site.FetchTimeout, cfg.Site.RetryAttempts,
			func(name string, to resilience.State) {
				if m != nil {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				}
			})
		source = s.Origin
	} else {
		source = shard.NewFileSource(cfg.Site.ShardDir)
	}
	s.logger.Info("shard source configured", "source", source)

	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			s.logger.Warn("redis unavailable, shard caching disabled", "error", err)
		} else {
			s.Redis = client
			namespace := cfg.Site.ShardURL
			if namespace == "" {
				namespace = cfg.Site.ShardDir
			}
			s.ShardCache = shard.NewCachedSource(source, client, namespace, cfg.Search.ShardCacheTTL)
			source = s.ShardCache
			s.logger.Info("shard cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Search.ShardCacheTTL)
		}
	}

	s.Loader = shard.NewLoader(source, shard.Options{
		Ext:           cfg.Site.ShardExt,
		Categories:    categories,
		LoadTimeout:   cfg.Search.LoadTimeout,
		MaxConcurrent: cfg.Search.MaxConcurrentLoads,
		Metrics:       m,
	})
	s.Engine, err = query.New(s.Loader, s.Index, query.Options{
		MaxResults:     cfg.Search.MaxResults,
		MaxQueryLength: cfg.Search.MaxQueryLength,
		CacheSize:      cfg.Search.ResultCacheSize,
		Metrics:        m,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Manifest, err = s.loadManifest(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Resolver = navigation.NewResolver(s.Manifest, m)
	s.logger.Info("site manifest loaded", "source", cfg.Site.ManifestSource, "pages", s.Manifest.Len())

	if cfg.Search.Warm != "" {
		if err := s.Engine.Warm(ctx, cfg.Search.Warm); err != nil {
			s.Close()
			return nil, fmt.Errorf("warming index: %w", err)
		}
		s.logger.Info("index warmed", "letters", cfg.Search.Warm, "entries", s.Index.Stats().Entries)
	}
	return s, nil
}

func (s *Stack) loadManifest(ctx context.Context, cfg *config.Config) (*navigation.StaticManifest, error) {
	switch cfg.Site.ManifestSource {
	case "file":
		return navigation.LoadManifestFile(cfg.Site.ManifestPath)
	case "scan":
		return navigation.ScanSite(cfg.Site.SiteDir, cfg.Site.BaseURL)
	case "postgres":
		store, client, err := OpenManifestStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.Postgres = client
		return store.Load(ctx)
	}
	return nil, fmt.Errorf("unknown manifest source %q", cfg.Site.ManifestSource)
}

// OpenManifestStore connects to PostgreSQL and returns the page store,
// creating its table if needed. The caller closes the client.
func OpenManifestStore(ctx context.Context, cfg *config.Config) (*navigation.Store, *postgres.Client, error) {
	client, err := postgres.New(cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to manifest store: %w", err)
	}
	store := navigation.NewStore(client)
	if err := store.EnsureSchema(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}
	return store, client, nil
}

// RegisterHealth adds a readiness check per component of the stack.
func (s *Stack) RegisterHealth(checker *health.Checker) {
	checker.Register("manifest", func(ctx context.Context) health.ComponentHealth {
		if s.Manifest.Len() == 0 {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no pages"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d pages", s.Manifest.Len())}
	})
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		st := s.Index.Stats()
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d entries in %d partitions", st.Entries, st.Partitions)}
	})
	if s.Origin != nil {
		checker.Register("shard_origin", func(ctx context.Context) health.ComponentHealth {
			if st := s.Origin.BreakerState(); st != resilience.StateClosed {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + st.String()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	if s.Redis != nil {
		checker.Register("redis", health.Ping(s.Redis.Ping, health.StatusDegraded))
	}
	if s.Postgres != nil {
		checker.Register("postgres", health.Ping(s.Postgres.Ping, health.StatusDegraded))
	}
}

// Close releases backend connections.
func (s *Stack) Close() {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.logger.Warn("closing redis", "error", err)
		}
	}
	if s.Postgres != nil {
		if err := s.Postgres.Close(); err != nil {
			s.logger.Warn("closing postgres", "error", err)
		}
	}
}

func parseCategories(names []string) ([]symbol.Category, error) {
	out := make([]symbol.Category, 0, len(names))
	for _, name := range names {
		c, err := symbol.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("site categories: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}
