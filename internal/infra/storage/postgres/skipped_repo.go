package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

// SkippedEventRepo implements storage.SkippedEventRepository using PostgreSQL.
type SkippedEventRepo struct {
	db *DB
}

// NewSkippedEventRepo creates a new PostgreSQL skipped event repository.
func NewSkippedEventRepo(db *DB) *SkippedEventRepo {
	return &SkippedEventRepo{db: db}
}

func (r *SkippedEventRepo) Add(ctx context.Context, ev *domain.SkippedEvent) error {
	var payload any
	if len(ev.Payload) > 0 {
		payload = []byte(ev.Payload)
	}
	var version, index any
	if !ev.Unpositioned {
		version, index = ev.Position.Version, ev.Position.Index
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO skipped_events (id, stream, dedupe_key, txn_version, event_index, raw_version, raw_index,
			event_type, reason, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (stream, dedupe_key) DO NOTHING`,
		ev.ID, ev.Stream, ev.Key(), version, index, ev.RawVersion, ev.RawIndex,
		ev.Type, ev.Reason, payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add skipped event: %w", err)
	}
	return nil
}

func (r *SkippedEventRepo) Count(ctx context.Context, stream string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM skipped_events WHERE stream = $1`, stream)
	if IsUndefinedTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count skipped events: %w", err)
	}
	return n, nil
}

func (r *SkippedEventRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM skipped_events WHERE created_at < $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to prune skipped events: %w", err)
	}
	return res.RowsAffected()
}
