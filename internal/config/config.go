// Package config loads the newsdedup run configuration: the feed list and
// the connection settings for the store, seen cache, hand-off topic and
// report archive. Values come from a YAML file with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/newsdedup/internal/feeds"
	"github.com/steveyegge/newsdedup/internal/handoff"
	"github.com/steveyegge/newsdedup/internal/report"
	"github.com/steveyegge/newsdedup/internal/seencache"
	"github.com/steveyegge/newsdedup/internal/storage"
)

// PathEnv names the config file when --config is not given
const PathEnv = "NEWSDEDUP_CONFIG"

// Config is the top-level run configuration
type Config struct {
	Database DatabaseConfig      `yaml:"database"`
	Redis    RedisConfig         `yaml:"redis"`
	Kafka    handoff.KafkaConfig `yaml:"kafka"`
	Archive  ArchiveConfig       `yaml:"archive"`
	Ingest   IngestConfig        `yaml:"ingest"`
	Feeds    []feeds.Feed        `yaml:"feeds"`
}

// DatabaseConfig selects the article store
type DatabaseConfig struct {
	// DSN is postgres://..., sqlite://path or a bare SQLite path
	DSN string `yaml:"dsn"`
}

// RedisConfig configures the seen cache. An empty Addr uses the in-process cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// TTL is a Go duration string, e.g. "48h"
	TTL string `yaml:"ttl"`
}

// ArchiveConfig says where run reports go. A bucket wins over Dir.
type ArchiveConfig struct {
	report.S3Config `yaml:",inline"`
	Dir             string `yaml:"dir"`
}

// IngestConfig tunes the fetch and pipeline stages
type IngestConfig struct {
	Workers           int     `yaml:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	SummaryChars      int     `yaml:"summary_chars"`
	MaxItems          int     `yaml:"max_items"`
	ExtractMissing    bool    `yaml:"extract_missing"`
	Timeout           string  `yaml:"timeout"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	fc := feeds.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{DSN: storage.DefaultSQLitePath},
		Redis:    RedisConfig{TTL: seencache.DefaultTTL.String()},
		Kafka:    handoff.KafkaConfig{Topic: "newsdedup.analysis"},
		Ingest: IngestConfig{
			Workers:           5,
			RequestsPerSecond: fc.RequestsPerSecond,
			SummaryChars:      fc.SummaryChars,
			Timeout:           fc.Timeout.String(),
		},
	}
}

// Load reads path (or $NEWSDEDUP_CONFIG) over the defaults, applies
// environment overrides and validates the result. An empty path with no
// env var yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(PathEnv)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(bytes.NewReader(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// decode unmarshals YAML into cfg, rejecting unknown keys
func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("NEWSDEDUP_DB"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASS"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		c.Redis.DB = db
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("NEWSDEDUP_KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("NEWSDEDUP_ARCHIVE_BUCKET"); v != "" {
		c.Archive.Bucket = v
	}
	if v := os.Getenv("NEWSDEDUP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid NEWSDEDUP_WORKERS: %w", err)
		}
		c.Ingest.Workers = n
	}
	return nil
}

// Validate checks the configuration for values the run cannot use
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn cannot be empty")
	}
	if c.Ingest.Workers < 1 || c.Ingest.Workers > 100 {
		return fmt.Errorf("ingest.workers must be between 1 and 100 (got %d)", c.Ingest.Workers)
	}
	if c.Ingest.RequestsPerSecond < 0 {
		return fmt.Errorf("ingest.requests_per_second cannot be negative")
	}
	if c.Ingest.SummaryChars < 0 || c.Ingest.MaxItems < 0 {
		return fmt.Errorf("ingest.summary_chars and ingest.max_items cannot be negative")
	}
	if _, err := c.seenTTL(); err != nil {
		return err
	}
	if _, err := c.fetchTimeout(); err != nil {
		return err
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	for i, f := range c.Feeds {
		if f.URL == "" {
			return fmt.Errorf("feeds[%d]: url cannot be empty", i)
		}
	}
	return nil
}

func (c *Config) seenTTL() (time.Duration, error) {
	if c.Redis.TTL == "" {
		return seencache.DefaultTTL, nil
	}
	d, err := time.ParseDuration(c.Redis.TTL)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("redis.ttl must be a positive duration (got %q)", c.Redis.TTL)
	}
	return d, nil
}

func (c *Config) fetchTimeout() (time.Duration, error) {
	if c.Ingest.Timeout == "" {
		return feeds.DefaultConfig().Timeout, nil
	}
	d, err := time.ParseDuration(c.Ingest.Timeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("ingest.timeout must be a positive duration (got %q)", c.Ingest.Timeout)
	}
	return d, nil
}

// SeenCache returns the redis settings, with ok false when no address is set
func (c *Config) SeenCache() (cfg seencache.RedisConfig, ok bool) {
	ttl, err := c.seenTTL()
	if err != nil {
		ttl = seencache.DefaultTTL
	}
	return seencache.RedisConfig{
		Addr:      c.Redis.Addr,
		Password:  c.Redis.Password,
		DB:        c.Redis.DB,
		KeyPrefix: "newsdedup:seen:",
		TTL:       ttl,
	}, c.Redis.Addr != ""
}

// SeenTTL is the TTL for the in-process cache when redis is not configured
func (c *Config) SeenTTL() time.Duration {
	ttl, err := c.seenTTL()
	if err != nil {
		return seencache.DefaultTTL
	}
	return ttl
}

// FetchConfig builds the feed fetcher settings
func (c *Config) FetchConfig() feeds.Config {
	fc := feeds.DefaultConfig()
	if d, err := c.fetchTimeout(); err == nil {
		fc.Timeout = d
	}
	if c.Ingest.RequestsPerSecond > 0 {
		fc.RequestsPerSecond = c.Ingest.RequestsPerSecond
	}
	if c.Ingest.SummaryChars > 0 {
		fc.SummaryChars = c.Ingest.SummaryChars
	}
	fc.MaxItems = c.Ingest.MaxItems
	fc.ExtractMissing = c.Ingest.ExtractMissing
	return fc
}

// StorageConfig builds the store settings
func (c *Config) StorageConfig() *storage.Config {
	sc := storage.DefaultConfig()
	sc.DSN = c.Database.DSN
	return sc
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
