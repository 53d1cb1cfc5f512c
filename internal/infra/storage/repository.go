package storage

import (
	"context"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

// CursorRepository handles durable stream cursors.
type CursorRepository interface {
	// Get returns the cursor of a stream, or nil when none is stored.
	Get(ctx context.Context, stream string) (*domain.Cursor, error)

	// Save stores the cursor if it is after the stored one; regressions are ignored.
	Save(ctx context.Context, cursor *domain.Cursor) error

	// Reset overwrites the cursor unconditionally (operator rewind).
	Reset(ctx context.Context, stream string, pos domain.Position) error

	// List returns all stored cursors.
	List(ctx context.Context) ([]*domain.Cursor, error)
}

// AccountRepository handles registered accounts.
type AccountRepository interface {
	// Upsert inserts or updates the account keyed by address, applying only newer positions.
	Upsert(ctx context.Context, account *domain.Account) error
}

// OrderRepository handles orders observed on chain.
type OrderRepository interface {
	// ApplyOrderCreated merges the event into a draft or the keyed order row and
	// records it in the order event log.
	ApplyOrderCreated(ctx context.Context, order *domain.OrderCreated) error
}

// StakingRepository handles warehouse staking state.
type StakingRepository interface {
	// UpsertStake stores the staked amount of a warehouse, applying only newer positions.
	UpsertStake(ctx context.Context, stake *domain.Stake) error

	// UpsertFee stores the storage fee of a warehouse, applying only newer positions.
	UpsertFee(ctx context.Context, fee *domain.StorageFee) error
}

// SkippedEventRepository handles events that were stepped over as malformed.
type SkippedEventRepository interface {
	// Add records a skipped event; recording the same position twice is a no-op.
	Add(ctx context.Context, ev *domain.SkippedEvent) error

	// Count returns the number of skipped events of a stream.
	Count(ctx context.Context, stream string) (int, error)

	// DeleteOlderThan removes skipped events recorded before the threshold.
	DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error)
}
