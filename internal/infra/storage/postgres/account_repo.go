package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

// AccountRepo implements storage.AccountRepository using PostgreSQL.
type AccountRepo struct {
	db *DB
}

// NewAccountRepo creates a new PostgreSQL account repository.
func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

type accountRow struct {
	Address          string         `db:"account_address"`
	Role             string         `db:"role"`
	ProfileHashAlgo  string         `db:"profile_hash_algo"`
	ProfileHashValue string         `db:"profile_hash_value"`
	ProfileURI       sql.NullString `db:"profile_uri"`
	RegisteredBy     string         `db:"registered_by"`
	TxnVersion       int64          `db:"txn_version"`
	EventIndex       int64          `db:"event_index"`
	TxnHash          string         `db:"txn_hash"`
	ChainTimestamp   time.Time      `db:"chain_timestamp"`
}

const upsertAccountSQL = `
	INSERT INTO accounts (
		account_address, role, profile_hash_algo, profile_hash_value, profile_uri,
		registered_by, txn_version, event_index, txn_hash, chain_timestamp
	) VALUES (
		:account_address, :role, :profile_hash_algo, :profile_hash_value, :profile_uri,
		:registered_by, :txn_version, :event_index, :txn_hash, :chain_timestamp
	)
	ON CONFLICT (account_address) DO UPDATE SET
		role = EXCLUDED.role,
		profile_hash_algo = EXCLUDED.profile_hash_algo,
		profile_hash_value = EXCLUDED.profile_hash_value,
		profile_uri = EXCLUDED.profile_uri,
		registered_by = EXCLUDED.registered_by,
		txn_version = EXCLUDED.txn_version,
		event_index = EXCLUDED.event_index,
		txn_hash = EXCLUDED.txn_hash,
		chain_timestamp = EXCLUDED.chain_timestamp,
		updated_at = now()
	WHERE (accounts.txn_version, accounts.event_index) < (EXCLUDED.txn_version, EXCLUDED.event_index)`

// Upsert inserts the account or updates it when the event is newer than the stored one.
func (r *AccountRepo) Upsert(ctx context.Context, a *domain.Account) error {
	row := accountRow{
		Address:          a.Address,
		Role:             string(a.Role),
		ProfileHashAlgo:  a.ProfileHashAlgo,
		ProfileHashValue: a.ProfileHashValue,
		ProfileURI:       sql.NullString{String: a.ProfileURI, Valid: a.ProfileURI != ""},
		RegisteredBy:     a.RegisteredBy,
		TxnVersion:       a.Position.Version,
		EventIndex:       a.Position.Index,
		TxnHash:          a.TxnHash,
		ChainTimestamp:   a.ChainTimestamp,
	}
	if row.ProfileHashAlgo == "" {
		row.ProfileHashAlgo = domain.ProfileHashAlgo
	}
	if _, err := r.db.NamedExecContext(ctx, upsertAccountSQL, row); err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", a.Address, err)
	}
	return nil
}
