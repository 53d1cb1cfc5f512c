package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPosition marks an event whose version or index cannot be parsed.
var ErrInvalidPosition = errors.New("invalid event position")

// RawEvent is an event row as returned by the indexer.
type RawEvent struct {
	TransactionVersion   json.Number     `json:"transaction_version"`
	EventIndex           json.Number     `json:"event_index"`
	Type                 string          `json:"type"`
	Data                 json.RawMessage `json:"data"`
	AccountAddress       string          `json:"account_address,omitempty"`
	TransactionHash      string          `json:"transaction_hash,omitempty"`
	TransactionTimestamp string          `json:"transaction_timestamp,omitempty"`
}

// Position parses the event's ledger position.
func (e RawEvent) Position() (Position, error) {
	version, err := strconv.ParseInt(strings.TrimSpace(e.TransactionVersion.String()), 10, 64)
	if err != nil {
		return Position{}, fmt.Errorf("%w: transaction_version %q: %v", ErrInvalidPosition, e.TransactionVersion, err)
	}
	index, err := strconv.ParseInt(strings.TrimSpace(e.EventIndex.String()), 10, 64)
	if err != nil {
		return Position{}, fmt.Errorf("%w: event_index %q: %v", ErrInvalidPosition, e.EventIndex, err)
	}
	if version < 0 || index < 0 {
		return Position{}, fmt.Errorf("%w: negative position %d:%d", ErrInvalidPosition, version, index)
	}
	return Position{Version: version, Index: index}, nil
}

// TxnMeta is the transaction metadata attached to every normalized record.
type TxnMeta struct {
	Hash      string
	Timestamp time.Time
}

// Degraded reports whether the metadata is a placeholder.
func (m TxnMeta) Degraded() bool {
	return strings.HasPrefix(m.Hash, UnknownHashPrefix)
}

// UnknownHashPrefix marks a transaction hash that could not be resolved.
const UnknownHashPrefix = "unknown:"

// PlaceholderMeta builds metadata for a transaction whose hash could not be resolved.
func PlaceholderMeta(version int64, now time.Time) TxnMeta {
	return TxnMeta{
		Hash:      UnknownHashPrefix + strconv.FormatInt(version, 10),
		Timestamp: now,
	}
}

// Record is a normalized, persistable result of mapping one event.
type Record interface {
	EventPosition() Position
}
