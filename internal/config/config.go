package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// AppName names the XDG data directory.
const AppName = "property-crawler"

// Store kinds accepted by CRAWLER_STORE / --store.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreFile     = "file"
)

// Relay publishers accepted by RELAY_PUBLISHER.
const (
	PublisherRedis = "redis"
	PublisherKafka = "kafka"
)

var (
	ErrInvalidStrategy  = errors.New("invalid crawl strategy")
	ErrInvalidStore     = errors.New("invalid store")
	ErrInvalidPublisher = errors.New("invalid relay publisher")
	ErrInvalidLimit     = errors.New("invalid limit")
)

type Config struct {
	Crawler  CrawlerConfig
	Fetcher  FetcherConfig
	Database DatabaseConfig
	SQLite   SQLiteConfig
	File     FileConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Relay    RelayConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

type CrawlerConfig struct {
	Strategy    string
	MaxDepth    int
	PageLimit   int
	Delay       time.Duration
	Jitter      time.Duration
	SiteProfile string
	Store       string
}

type FetcherConfig struct {
	Timeout     time.Duration
	DialTimeout time.Duration
	MaxBodySize int64
	UserAgent   string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

type SQLiteConfig struct {
	Path string
}

type FileConfig struct {
	Path string
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	StreamMaxLen int64
}

type KafkaConfig struct {
	Brokers []string
	// Topic overrides the per-event target stream when set.
	Topic string
}

type RelayConfig struct {
	Enabled      bool
	Publisher    string
	PollInterval time.Duration
	BatchSize    int
	TargetStream string
}

type ServerConfig struct {
	// Addr is empty when the status server is disabled.
	Addr string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Crawler: CrawlerConfig{
			Strategy:    getEnvOrDefault("CRAWLER_STRATEGY", "pagination"),
			MaxDepth:    getIntOrDefault("CRAWLER_MAX_DEPTH", 2),
			PageLimit:   getIntOrDefault("CRAWLER_PAGE_LIMIT", 5),
			Delay:       getDurationOrDefault("CRAWLER_DELAY", time.Second),
			Jitter:      getDurationOrDefault("CRAWLER_JITTER", 0),
			SiteProfile: getEnvOrDefault("CRAWLER_SITE_PROFILE", ""),
			Store:       getEnvOrDefault("CRAWLER_STORE", StoreSQLite),
		},
		Fetcher: FetcherConfig{
			Timeout:     getDurationOrDefault("FETCHER_TIMEOUT", 30*time.Second),
			DialTimeout: getDurationOrDefault("FETCHER_DIAL_TIMEOUT", 10*time.Second),
			MaxBodySize: int64(getIntOrDefault("FETCHER_MAX_BODY_SIZE", 10*1024*1024)),
			UserAgent:   getEnvOrDefault("FETCHER_USER_AGENT", ""),
		},
		Database: DatabaseConfig{
			URL:      getEnvOrDefault("DATABASE_URL", ""),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "property_me"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		SQLite: SQLiteConfig{
			Path: getEnvOrDefault("SQLITE_PATH", DefaultSQLitePath()),
		},
		File: FileConfig{
			Path: getEnvOrDefault("FILE_STORE_PATH", DefaultFileStorePath()),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			StreamMaxLen: int64(getIntOrDefault("REDIS_STREAM_MAX_LEN", 10000)),
		},
		Kafka: KafkaConfig{
			Brokers: getStringSliceOrDefault("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnvOrDefault("KAFKA_TOPIC", ""),
		},
		Relay: RelayConfig{
			Enabled:      getBoolOrDefault("RELAY_ENABLED", false),
			Publisher:    getEnvOrDefault("RELAY_PUBLISHER", PublisherRedis),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
			TargetStream: getEnvOrDefault("RELAY_TARGET_STREAM", "stream:listings"),
		},
		Server: ServerConfig{
			Addr: getEnvOrDefault("STATUS_ADDR", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Crawler.Strategy {
	case "pagination", "links":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, c.Crawler.Strategy)
	}

	switch c.Crawler.Store {
	case StorePostgres, StoreSQLite, StoreFile:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStore, c.Crawler.Store)
	}

	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("%w: CRAWLER_MAX_DEPTH must not be negative", ErrInvalidLimit)
	}

	if c.Crawler.PageLimit < 1 {
		return fmt.Errorf("%w: CRAWLER_PAGE_LIMIT must be at least 1", ErrInvalidLimit)
	}

	if c.Crawler.Delay < 0 || c.Crawler.Jitter < 0 {
		return fmt.Errorf("%w: CRAWLER_DELAY and CRAWLER_JITTER must not be negative", ErrInvalidLimit)
	}

	if c.Relay.BatchSize < 1 {
		return fmt.Errorf("%w: RELAY_BATCH_SIZE must be at least 1", ErrInvalidLimit)
	}

	switch c.Relay.Publisher {
	case PublisherRedis, PublisherKafka:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPublisher, c.Relay.Publisher)
	}

	if c.Relay.Enabled && c.Crawler.Store != StorePostgres {
		return fmt.Errorf("%w: the outbox relay requires the postgres store", ErrInvalidStore)
	}

	return nil
}

// DefaultSQLitePath is the listings database under the XDG data directory.
func DefaultSQLitePath() string {
	return filepath.Join(xdg.DataHome, AppName, "listings.db")
}

func DefaultFileStorePath() string {
	return filepath.Join(xdg.DataHome, AppName, "listings.json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
