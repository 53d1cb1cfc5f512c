package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/cyl19970726/haigo-sub001/internal/indexing/throttle"
)

// Load reads configuration from a YAML file on top of Default, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			// Expand environment variables in the YAML content
			expandedData := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	ApplyEnv(&cfg, os.LookupEnv)
	cfg.normalize()
	return &cfg, nil
}

// ApplyEnv overrides cfg from environment variables. Values that do not parse
// are ignored and the current value is kept.
func ApplyEnv(cfg *AppConfig, lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("DATABASE_URL"); ok {
		cfg.Database.URL = v
	}
	if v, ok := get("REDIS_URL"); ok {
		cfg.Redis.URL = v
	}
	if v, ok := get("CURSOR_STORE"); ok {
		cfg.CursorStore = strings.ToLower(v)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}

	if v, ok := get("APTOS_INDEXER_URL"); ok {
		cfg.Aptos.IndexerURLs = []string{v}
	}
	if v, ok := get("APTOS_INDEXER_URLS"); ok {
		if urls := splitList(v); len(urls) > 0 {
			cfg.Aptos.IndexerURLs = urls
		}
	}
	if v, ok := get("APTOS_NODE_API_URL"); ok {
		cfg.Aptos.NodeAPIURL = v
	}
	if v, ok := get("APTOS_NODE_API_KEY"); ok {
		cfg.Aptos.APIKey = v
	}
	if v, ok := get("NEXT_PUBLIC_APTOS_MODULE"); ok {
		cfg.Aptos.ModuleAddress = v
	}
	if v, ok := get("APTOS_MODULE_ADDRESS"); ok {
		cfg.Aptos.ModuleAddress = v
	}

	applyStreamEnv(&cfg.Streams.Accounts, "ACCOUNT", get)
	applyStreamEnv(&cfg.Streams.Orders, "ORDER", get)
	applyStreamEnv(&cfg.Streams.Staking, "STAKING", get)
}

func applyStreamEnv(s *StreamConfig, prefix string, get func(string) (string, bool)) {
	if v, ok := get("ENABLE_" + prefix + "_LISTENER"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Enabled = b
		}
	}
	key := prefix + "_INGESTOR_"
	if v, ok := get(key + "INTERVAL_MS"); ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			s.Interval = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := get(key + "PAGE_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.PageSize = n
		}
	}
	if v, ok := get(key + "MAX_PAGES_PER_TICK"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.MaxPagesPerTick = n
		}
	}
	if v, ok := get(key + "START_FROM_LATEST"); ok {
		s.StartFromLatest = strings.EqualFold(v, "true")
	}
	if v, ok := get(key + "BACKFILL_OFFSET_VERSIONS"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			s.BackfillOffsetVersions = n
		}
	}
}

func (c *AppConfig) normalize() {
	def := Default()
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.CursorStore == "" {
		c.CursorStore = def.CursorStore
	}
	if len(c.Aptos.IndexerURLs) == 0 {
		c.Aptos.IndexerURLs = def.Aptos.IndexerURLs
	}
	if c.Aptos.NodeAPIURL == "" {
		c.Aptos.NodeAPIURL = def.Aptos.NodeAPIURL
	}
	if c.Aptos.RequestTimeout <= 0 {
		c.Aptos.RequestTimeout = def.Aptos.RequestTimeout
	}
	normalizeStream(&c.Streams.Accounts, def.Streams.Accounts)
	normalizeStream(&c.Streams.Orders, def.Streams.Orders)
	normalizeStream(&c.Streams.Staking, def.Streams.Staking)
	normalizeBackoff(&c.Backoff, def.Backoff)
}

func normalizeBackoff(b *throttle.Config, def throttle.Config) {
	if b.RateLimitFloor < 0 {
		b.RateLimitFloor = def.RateLimitFloor
	}
	if b.TimeoutFloor < 0 {
		b.TimeoutFloor = def.TimeoutFloor
	}
	if b.NetworkFloor < 0 {
		b.NetworkFloor = def.NetworkFloor
	}
	if b.RotationFloor < 0 {
		b.RotationFloor = def.RotationFloor
	}
	if b.Base <= 0 {
		b.Base = def.Base
	}
	if b.Min <= 0 {
		b.Min = def.Min
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	if b.Max < b.Min {
		b.Min, b.Max = def.Min, def.Max
	}
	if b.JitterPercent > 100 {
		b.JitterPercent = def.JitterPercent
	}
}

func normalizeStream(s *StreamConfig, def StreamConfig) {
	if s.Interval <= 0 {
		s.Interval = def.Interval
	}
	if s.PageSize <= 0 {
		s.PageSize = def.PageSize
	}
	if s.MaxPagesPerTick <= 0 {
		s.MaxPagesPerTick = def.MaxPagesPerTick
	}
	if s.BackfillOffsetVersions < 0 {
		s.BackfillOffsetVersions = 0
	}
	if s.PageDelay < 0 {
		s.PageDelay = 0
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
