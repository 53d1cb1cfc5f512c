package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

// OrderRepo implements storage.OrderRepository using PostgreSQL.
type OrderRepo struct {
	db *DB
}

// NewOrderRepo creates a new PostgreSQL order repository.
func NewOrderRepo(db *DB) *OrderRepo {
	return &OrderRepo{db: db}
}

type orderEventData struct {
	Pricing          domain.Pricing `json:"pricing"`
	LogisticsInbound *string        `json:"logistics_inbound"`
}

// ApplyOrderCreated promotes a draft with the same transaction hash, or upserts the
// order by record UID, and appends the event to order_events in one transaction.
func (r *OrderRepo) ApplyOrderCreated(ctx context.Context, o *domain.OrderCreated) error {
	pricing, err := json.Marshal(o.Pricing)
	if err != nil {
		return fmt.Errorf("marshal pricing: %w", err)
	}
	var logistics *string
	if o.LogisticsInbound != "" {
		logistics = &o.LogisticsInbound
	}
	data, err := json.Marshal(orderEventData{Pricing: o.Pricing, LogisticsInbound: logistics})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	return r.db.Do(ctx, func(tx *sqlx.Tx) error {
		recordUID := ""
		if o.HasRealHash() {
			uid, err := promoteDraft(ctx, tx, o, pricing, logistics)
			if err != nil {
				return err
			}
			recordUID = uid
		}

		if recordUID == "" {
			recordUID = o.RecordUID()
			if err := upsertOrder(ctx, tx, recordUID, o, pricing, logistics); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_events (
				record_uid, order_id, type, txn_version, event_index, txn_hash, chain_timestamp, data
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (txn_version, event_index) DO NOTHING`,
			recordUID, o.OrderID, domain.OrderEventCreated,
			o.Position.Version, o.Position.Index, o.TxnHash, o.ChainTimestamp, data)
		if err != nil {
			return fmt.Errorf("failed to insert order event: %w", err)
		}
		return nil
	})
}

func promoteDraft(
	ctx context.Context,
	tx *sqlx.Tx,
	o *domain.OrderCreated,
	pricing []byte,
	logistics *string,
) (string, error) {
	var uid string
	err := tx.QueryRowxContext(ctx, `
		UPDATE orders SET
			order_id = $2,
			creator_address = $3,
			warehouse_address = $4,
			status = $5,
			pricing = $6,
			logistics_inbound = COALESCE($7, logistics_inbound),
			txn_version = $8,
			event_index = $9,
			chain_timestamp = $10,
			updated_at = now()
		WHERE id = (SELECT id FROM orders WHERE txn_hash = $1 ORDER BY id LIMIT 1)
		RETURNING record_uid`,
		o.TxnHash, o.OrderID, o.Seller, o.Warehouse, domain.OrderStatusOnchainCreated,
		pricing, logistics, o.Position.Version, o.Position.Index, o.ChainTimestamp,
	).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to promote draft order: %w", err)
	}
	return uid, nil
}

func upsertOrder(
	ctx context.Context,
	tx *sqlx.Tx,
	recordUID string,
	o *domain.OrderCreated,
	pricing []byte,
	logistics *string,
) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (
			record_uid, order_id, creator_address, warehouse_address, status, pricing,
			logistics_inbound, txn_version, event_index, txn_hash, chain_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (record_uid) DO UPDATE SET
			order_id = EXCLUDED.order_id,
			creator_address = EXCLUDED.creator_address,
			warehouse_address = EXCLUDED.warehouse_address,
			status = EXCLUDED.status,
			pricing = EXCLUDED.pricing,
			logistics_inbound = COALESCE(EXCLUDED.logistics_inbound, orders.logistics_inbound),
			txn_version = EXCLUDED.txn_version,
			event_index = EXCLUDED.event_index,
			txn_hash = EXCLUDED.txn_hash,
			chain_timestamp = EXCLUDED.chain_timestamp,
			updated_at = now()`,
		recordUID, o.OrderID, o.Seller, o.Warehouse, domain.OrderStatusOnchainCreated, pricing,
		logistics, o.Position.Version, o.Position.Index, o.TxnHash, o.ChainTimestamp)
	if err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", recordUID, err)
	}
	return nil
}
