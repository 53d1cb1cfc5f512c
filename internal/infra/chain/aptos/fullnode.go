package aptos

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/provider"
)

// CacheObserver receives cache hit and miss counts.
type CacheObserver interface {
	IncCache(cache string, hit bool)
}

const txnCacheName = "txn_meta"

// FullnodeClient resolves transaction metadata and the ledger tip from the
// fullnode REST API.
type FullnodeClient struct {
	provider *provider.HTTPProvider
	cache    *lru.Cache
	observer CacheObserver
	log      *slog.Logger
	now      func() time.Time
}

// NewFullnodeClient creates a client. A cacheSize <= 0 disables the metadata cache.
func NewFullnodeClient(p *provider.HTTPProvider, cacheSize int, observer CacheObserver, log *slog.Logger) (*FullnodeClient, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &FullnodeClient{
		provider: p,
		observer: observer,
		log:      log.With("component", "fullnode"),
		now:      time.Now,
	}
	if cacheSize > 0 {
		cache, err := lru.New(cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create txn cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

type transactionResponse struct {
	Hash      string          `json:"hash"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// TransactionMeta returns the hash and timestamp of the transaction at version.
// It reports false when the lookup fails or the transaction has no hash.
func (c *FullnodeClient) TransactionMeta(ctx context.Context, version int64) (domain.TxnMeta, bool) {
	if c.cache != nil {
		if v, ok := c.cache.Get(version); ok {
			c.observe(true)
			return v.(domain.TxnMeta), true
		}
		c.observe(false)
	}

	raw, err := c.provider.GetJSON(ctx, "/transactions/by_version/"+strconv.FormatInt(version, 10))
	if err != nil {
		c.log.Warn("Transaction lookup failed", "version", version, "error", err)
		return domain.TxnMeta{}, false
	}

	var resp transactionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.log.Warn("Transaction response malformed", "version", version, "error", err)
		return domain.TxnMeta{}, false
	}
	if resp.Hash == "" {
		return domain.TxnMeta{}, false
	}

	meta := domain.TxnMeta{Hash: resp.Hash, Timestamp: c.parseMicros(resp.Timestamp)}
	if c.cache != nil {
		c.cache.Add(version, meta)
	}
	return meta, true
}

// LatestLedgerVersion returns the ledger tip, or 0 when it cannot be determined.
func (c *FullnodeClient) LatestLedgerVersion(ctx context.Context) int64 {
	raw, err := c.provider.GetJSON(ctx, "/")
	if err != nil {
		c.log.Warn("Ledger info lookup failed", "error", err)
		return 0
	}
	var info struct {
		LedgerVersion json.RawMessage `json:"ledger_version"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		c.log.Warn("Ledger info malformed", "error", err)
		return 0
	}
	v, err := parseInt(info.LedgerVersion)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// parseMicros converts a microsecond timestamp to time. Missing, non-numeric
// or non-positive values yield the current time.
func (c *FullnodeClient) parseMicros(raw json.RawMessage) time.Time {
	micros, err := parseInt(raw)
	if err != nil || micros <= 0 {
		return c.now()
	}
	return time.UnixMilli(micros / 1000)
}

func (c *FullnodeClient) observe(hit bool) {
	if c.observer != nil {
		c.observer.IncCache(txnCacheName, hit)
	}
}

// parseInt accepts both quoted and bare JSON integers.
func parseInt(raw json.RawMessage) (int64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	return strconv.ParseInt(s, 10, 64)
}
