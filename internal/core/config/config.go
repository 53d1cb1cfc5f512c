package config

import (
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/health"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/throttle"
	redisclient "github.com/cyl19970726/haigo-sub001/internal/infra/redis"
	"github.com/cyl19970726/haigo-sub001/internal/infra/storage/postgres"
)

// Cursor store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

const (
	DefaultIndexerURL  = "https://api.testnet.aptoslabs.com/v1/graphql"
	DefaultNodeAPIURL  = "https://api.testnet.aptoslabs.com/v1"
	DefaultModuleAddr  = "0xA11CE"
	defaultPageDelay   = 250 * time.Millisecond
	defaultSkippedDays = 30
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server           ServerConfig       `yaml:"server"`
	Aptos            AptosConfig        `yaml:"aptos"`
	Streams          StreamsConfig      `yaml:"streams"`
	Backoff          throttle.Config    `yaml:"backoff"`
	Health           health.Thresholds  `yaml:"health"`
	CursorStore      string             `yaml:"cursor_store"` // postgres, redis, memory
	SkippedRetention time.Duration      `yaml:"skipped_retention"`
	Redis            redisclient.Config `yaml:"redis"`
	Logging          LoggingConfig      `yaml:"logging"`
	Database         postgres.Config    `yaml:"database"`
}

// ServerConfig holds the health server ports. A zero GRPCPort disables gRPC health.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// AptosConfig holds the ledger endpoints shared by all streams.
type AptosConfig struct {
	IndexerURLs    []string      `yaml:"indexer_urls"`
	NodeAPIURL     string        `yaml:"node_api_url"`
	APIKey         string        `yaml:"api_key"`
	ModuleAddress  string        `yaml:"module_address"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	TxnCacheSize   int           `yaml:"txn_cache_size"`
}

// StreamsConfig holds one poller configuration per stream.
type StreamsConfig struct {
	Accounts StreamConfig `yaml:"accounts"`
	Orders   StreamConfig `yaml:"orders_created"`
	Staking  StreamConfig `yaml:"staking"`
}

// StreamConfig holds settings for a single poller.
type StreamConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Interval               time.Duration `yaml:"interval"`
	PageSize               int           `yaml:"page_size"`
	MaxPagesPerTick        int           `yaml:"max_pages_per_tick"`
	StartFromLatest        bool          `yaml:"start_from_latest"`
	BackfillOffsetVersions int64         `yaml:"backfill_offset_versions"`
	PageDelay              time.Duration `yaml:"page_delay"`
	IndexerURLs            []string      `yaml:"indexer_urls"` // overrides aptos.indexer_urls
}

// ByName returns the poller configuration keyed by stream name.
func (s StreamsConfig) ByName() map[string]StreamConfig {
	return map[string]StreamConfig{
		domain.StreamAccounts:      s.Accounts,
		domain.StreamOrdersCreated: s.Orders,
		domain.StreamStaking:       s.Staking,
	}
}

// IndexerURLs returns the endpoint pool for a stream.
func (c *AppConfig) IndexerURLs(stream StreamConfig) []string {
	if len(stream.IndexerURLs) > 0 {
		return stream.IndexerURLs
	}
	return c.Aptos.IndexerURLs
}

func defaultStream(interval time.Duration, pageSize int) StreamConfig {
	return StreamConfig{
		Enabled:         true,
		Interval:        interval,
		PageSize:        pageSize,
		MaxPagesPerTick: 1,
		StartFromLatest: true,
		PageDelay:       defaultPageDelay,
	}
}

// Default returns the configuration used when no file or env overrides apply.
func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{Port: 8080},
		Aptos: AptosConfig{
			IndexerURLs:    []string{DefaultIndexerURL},
			NodeAPIURL:     DefaultNodeAPIURL,
			ModuleAddress:  DefaultModuleAddr,
			RequestTimeout: 15 * time.Second,
			TxnCacheSize:   4096,
		},
		Streams: StreamsConfig{
			Accounts: defaultStream(30*time.Second, 25),
			Orders:   defaultStream(30*time.Second, 25),
			Staking:  defaultStream(45*time.Second, 10),
		},
		Backoff:          throttle.DefaultConfig(),
		Health:           health.DefaultThresholds(),
		CursorStore:      StorePostgres,
		SkippedRetention: defaultSkippedDays * 24 * time.Hour,
		Logging:          LoggingConfig{Level: "info", Format: "text"},
		Database:         postgres.Config{Driver: "pgx", MaxConns: 10, MinConns: 2},
	}
}
