package domain

import (
	"fmt"
	"time"
)

// Stream names used as cursor keys.
const (
	StreamAccounts      = "accounts"
	StreamOrdersCreated = "orders_created"
	StreamStaking       = "staking"
)

// Streams lists every stream in start order.
var Streams = []string{StreamAccounts, StreamOrdersCreated, StreamStaking}

// Position identifies an event in the ledger's global event order.
type Position struct {
	Version int64 `json:"version"`
	Index   int64 `json:"index"`
}

// Genesis sorts before every real event.
var Genesis = Position{Version: -1, Index: -1}

// Compare returns -1, 0 or 1 ordering p against o by version, then index.
func (p Position) Compare(o Position) int {
	switch {
	case p.Version < o.Version:
		return -1
	case p.Version > o.Version:
		return 1
	case p.Index < o.Index:
		return -1
	case p.Index > o.Index:
		return 1
	default:
		return 0
	}
}

// After reports whether p is strictly after o.
func (p Position) After(o Position) bool {
	return p.Compare(o) > 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Version, p.Index)
}

// Cursor represents the last applied event of a stream.
type Cursor struct {
	Stream    string
	Position  Position
	UpdatedAt time.Time
}
