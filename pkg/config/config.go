// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Site, Search, Session, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Site     SiteConfig     `yaml:"site"`
	Search   SearchConfig   `yaml:"search"`
	Session  SessionConfig  `yaml:"session"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	// RateLimit is the sustained requests per second allowed per client IP;
	// zero disables limiting.
	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`
	// AdminKeyHashes are SHA-256 hex digests of keys accepted on
	// administrative endpoints. When empty those endpoints accept any caller.
	AdminKeyHashes []string `yaml:"adminKeyHashes"`
}

// SiteConfig describes where the generated documentation site lives: the
// shard files the loader reads and the manifest the resolver consults.
type SiteConfig struct {
	// ShardDir is a local directory holding <category>_<letter>.<ext> files.
	ShardDir string `yaml:"shardDir"`
	// ShardURL is a remote base URL for shards; it wins over ShardDir.
	ShardURL       string        `yaml:"shardUrl"`
	ShardExt       string        `yaml:"shardExt"`
	Categories     []string      `yaml:"categories"`
	FetchTimeout   time.Duration `yaml:"fetchTimeout"`
	RetryAttempts  int           `yaml:"retryAttempts"`
	ManifestSource string        `yaml:"manifestSource"` // file, scan or postgres
	ManifestPath   string        `yaml:"manifestPath"`
	SiteDir        string        `yaml:"siteDir"`
	BaseURL        string        `yaml:"baseUrl"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	MaxResults         int           `yaml:"maxResults"`
	MaxQueryLength     int           `yaml:"maxQueryLength"`
	ResultCacheSize    int           `yaml:"resultCacheSize"`
	LoadTimeout        time.Duration `yaml:"loadTimeout"`
	MaxConcurrentLoads int           `yaml:"maxConcurrentLoads"`
	ShardCacheTTL      time.Duration `yaml:"shardCacheTTL"`
	// Warm lists leading letters whose shards are loaded at startup.
	Warm string `yaml:"warm"`
}

// SessionConfig controls the interactive session controller.
type SessionConfig struct {
	Debounce    time.Duration `yaml:"debounce"`
	MaxSessions int           `yaml:"maxSessions"`
	IdleTimeout time.Duration `yaml:"idleTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging for searches.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development
// against a doc site generated under ./html.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       50,
			RateBurst:       100,
		},
		Site: SiteConfig{
			ShardDir: "html/search",
			ShardExt: "js",
			Categories: []string{
				"classes", "namespaces", "files", "functions", "variables",
				"typedefs", "enums", "enumvalues", "defines", "related",
				"groups", "pages",
			},
			FetchTimeout:   5 * time.Second,
			RetryAttempts:  3,
			ManifestSource: "scan",
			SiteDir:        "html",
		},
		Search: SearchConfig{
			MaxResults:         50,
			MaxQueryLength:     256,
			ResultCacheSize:    1024,
			LoadTimeout:        10 * time.Second,
			MaxConcurrentLoads: 4,
			ShardCacheTTL:      10 * time.Minute,
		},
		Session: SessionConfig{
			Debounce:    0,
			MaxSessions: 1000,
			IdleTimeout: 30 * time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docsearch",
			User:            "docsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docsearch-group",
			Topics: KafkaTopics{
				AnalyticsEvents: "docsearch-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the services cannot start with.
func (c *Config) Validate() error {
	if c.Site.ShardDir == "" && c.Site.ShardURL == "" {
		return fmt.Errorf("site: one of shardDir or shardUrl is required")
	}
	if len(c.Site.Categories) == 0 {
		return fmt.Errorf("site: at least one shard category is required")
	}
	switch c.Site.ShardExt {
	case "js", "json":
	default:
		return fmt.Errorf("site: unsupported shard extension %q", c.Site.ShardExt)
	}
	switch c.Site.ManifestSource {
	case "file", "scan", "postgres":
	default:
		return fmt.Errorf("site: unknown manifest source %q", c.Site.ManifestSource)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search: maxResults must be positive")
	}
	return nil
}

// applyEnvOverrides reads DS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DS_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("DS_SERVER_ADMIN_KEY_HASHES"); v != "" {
		cfg.Server.AdminKeyHashes = strings.Split(v, ",")
	}
	if v := os.Getenv("DS_SITE_SHARD_DIR"); v != "" {
		cfg.Site.ShardDir = v
	}
	if v := os.Getenv("DS_SITE_SHARD_URL"); v != "" {
		cfg.Site.ShardURL = v
	}
	if v := os.Getenv("DS_SITE_CATEGORIES"); v != "" {
		cfg.Site.Categories = strings.Split(v, ",")
	}
	if v := os.Getenv("DS_SITE_MANIFEST_SOURCE"); v != "" {
		cfg.Site.ManifestSource = v
	}
	if v := os.Getenv("DS_SITE_MANIFEST_PATH"); v != "" {
		cfg.Site.ManifestPath = v
	}
	if v := os.Getenv("DS_SITE_DIR"); v != "" {
		cfg.Site.SiteDir = v
	}
	if v := os.Getenv("DS_SITE_BASE_URL"); v != "" {
		cfg.Site.BaseURL = v
	}
	if v := os.Getenv("DS_SEARCH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxResults = n
		}
	}
	if v := os.Getenv("DS_SEARCH_WARM"); v != "" {
		cfg.Search.Warm = v
	}
	if v := os.Getenv("DS_SESSION_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.Debounce = d
		}
	}
	if v := os.Getenv("DS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DS_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DS_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
