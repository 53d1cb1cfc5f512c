package postgres

import (
	"context"
	"fmt"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

// StakingRepo implements storage.StakingRepository using PostgreSQL.
type StakingRepo struct {
	db *DB
}

// NewStakingRepo creates a new PostgreSQL staking repository.
func NewStakingRepo(db *DB) *StakingRepo {
	return &StakingRepo{db: db}
}

// UpsertStake stores the staked amount when the event is newer than the stored one.
func (r *StakingRepo) UpsertStake(ctx context.Context, s *domain.Stake) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO staking_positions (warehouse_address, staked_amount, last_txn_version, last_event_index)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (warehouse_address) DO UPDATE SET
			staked_amount = EXCLUDED.staked_amount,
			last_txn_version = EXCLUDED.last_txn_version,
			last_event_index = EXCLUDED.last_event_index,
			updated_at = now()
		WHERE (staking_positions.last_txn_version, staking_positions.last_event_index)
			< (EXCLUDED.last_txn_version, EXCLUDED.last_event_index)`,
		s.WarehouseAddress, s.StakedAmount.String(), s.Position.Version, s.Position.Index)
	if err != nil {
		return fmt.Errorf("failed to upsert stake for %s: %w", s.WarehouseAddress, err)
	}
	return nil
}

// UpsertFee stores the storage fee when the event is newer than the stored one.
func (r *StakingRepo) UpsertFee(ctx context.Context, f *domain.StorageFee) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO storage_fee_cache (warehouse_address, fee_per_unit, last_txn_version, last_event_index)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (warehouse_address) DO UPDATE SET
			fee_per_unit = EXCLUDED.fee_per_unit,
			last_txn_version = EXCLUDED.last_txn_version,
			last_event_index = EXCLUDED.last_event_index,
			updated_at = now()
		WHERE (storage_fee_cache.last_txn_version, storage_fee_cache.last_event_index)
			< (EXCLUDED.last_txn_version, EXCLUDED.last_event_index)`,
		f.WarehouseAddress, f.FeePerUnit, f.Position.Version, f.Position.Index)
	if err != nil {
		return fmt.Errorf("failed to upsert storage fee for %s: %w", f.WarehouseAddress, err)
	}
	return nil
}
