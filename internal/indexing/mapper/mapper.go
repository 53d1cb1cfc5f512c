// Package mapper normalizes raw indexer events into domain records.
//
// Mappers never touch storage. A mapping failure that retrying cannot fix is
// reported as ErrMalformed so the poller can step over the event.
package mapper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

// ErrMalformed marks an event whose payload can never be mapped.
var ErrMalformed = errors.New("malformed event")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// MetaResolver looks up transaction metadata by version.
type MetaResolver interface {
	TransactionMeta(ctx context.Context, version int64) (domain.TxnMeta, bool)
}

// Event type names, relative to the module address.
const (
	SellerRegistered    = "registry::SellerRegistered"
	WarehouseRegistered = "registry::WarehouseRegistered"
	OrderCreated        = "orders::OrderCreated"
	StakeChanged        = "staking::StakeChanged"
	StorageFeeUpdated   = "staking::StorageFeeUpdated"
)

// EventType qualifies name with the module address.
func EventType(module, name string) string {
	return strings.TrimSpace(module) + "::" + name
}

type payload map[string]any

func decodePayload(raw json.RawMessage) (payload, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return payload{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var p payload
	if err := dec.Decode(&p); err != nil {
		return nil, malformed("data is not an object: %v", err)
	}
	return p, nil
}

// first returns the first present, non-null value among keys.
func (p payload) first(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// str returns the first non-empty scalar among keys as a string.
func (p payload) str(keys ...string) string {
	for _, k := range keys {
		switch v := p[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func (p payload) object(key string) payload {
	if m, ok := p[key].(map[string]any); ok {
		return payload(m)
	}
	return nil
}

// decimalField parses the first present key as a decimal; absent yields zero.
func (p payload) decimalField(keys ...string) (decimal.Decimal, error) {
	v, ok := p.first(keys...)
	if !ok {
		return decimal.Zero, nil
	}
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
		if s == "" {
			return decimal.Zero, nil
		}
	default:
		return decimal.Zero, malformed("%s is not numeric", keys[0])
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, malformed("%s %q is not numeric", keys[0], s)
	}
	return d, nil
}

// intField parses the first present key as an int64.
func (p payload) intField(keys ...string) (int64, bool, error) {
	s := p.str(keys...)
	if s == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, true, malformed("%s %q is not an integer", keys[0], s)
	}
	return n, true, nil
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// timestampLayouts are the formats the indexer uses for transaction_timestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// metaSource resolves transaction metadata, preferring values inlined in the event.
type metaSource struct {
	resolver MetaResolver
	log      *slog.Logger
	now      func() time.Time
}

func (m metaSource) resolve(ctx context.Context, ev domain.RawEvent, version int64) domain.TxnMeta {
	hash := strings.TrimSpace(ev.TransactionHash)
	ts, tsOK := parseTimestamp(ev.TransactionTimestamp)
	if hash != "" && tsOK {
		return domain.TxnMeta{Hash: hash, Timestamp: ts}
	}

	// Only the fields the event lacks are taken from the fullnode.
	if m.resolver != nil {
		if meta, ok := m.resolver.TransactionMeta(ctx, version); ok {
			if hash == "" {
				hash = meta.Hash
			}
			if !tsOK && !meta.Timestamp.IsZero() {
				ts, tsOK = meta.Timestamp, true
			}
		}
	}
	if hash != "" && tsOK {
		return domain.TxnMeta{Hash: hash, Timestamp: ts}
	}

	placeholder := domain.PlaceholderMeta(version, m.now())
	meta := domain.TxnMeta{Hash: hash, Timestamp: ts}
	if hash == "" {
		meta.Hash = placeholder.Hash
	}
	if !tsOK {
		meta.Timestamp = placeholder.Timestamp
	}
	m.log.Warn("Transaction metadata incomplete, using placeholder",
		"version", version,
		"hash", meta.Hash,
		"placeholder_hash", hash == "",
		"placeholder_timestamp", !tsOK,
	)
	return meta
}
