package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

type cursorRow struct {
	Stream         string    `db:"stream"`
	LastTxnVersion int64     `db:"last_txn_version"`
	LastEventIndex int64     `db:"last_event_index"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r cursorRow) toDomain() *domain.Cursor {
	return &domain.Cursor{
		Stream:    r.Stream,
		Position:  domain.Position{Version: r.LastTxnVersion, Index: r.LastEventIndex},
		UpdatedAt: r.UpdatedAt,
	}
}

// Get retrieves a cursor by stream name. A missing table is treated as no cursor.
func (r *CursorRepo) Get(ctx context.Context, stream string) (*domain.Cursor, error) {
	var row cursorRow
	err := r.db.GetContext(ctx, &row,
		`SELECT stream, last_txn_version, last_event_index, updated_at FROM event_cursors WHERE stream = $1`,
		stream)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if IsUndefinedTable(err) {
		r.db.log.Warn("event_cursors table missing, starting without a cursor", "stream", stream)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return row.toDomain(), nil
}

// Save stores the cursor unless the stored one is at or after it.
func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_cursors (stream, last_txn_version, last_event_index, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (stream) DO UPDATE SET
			last_txn_version = EXCLUDED.last_txn_version,
			last_event_index = EXCLUDED.last_event_index,
			updated_at = now()
		WHERE (event_cursors.last_txn_version, event_cursors.last_event_index)
			< (EXCLUDED.last_txn_version, EXCLUDED.last_event_index)`,
		cursor.Stream, cursor.Position.Version, cursor.Position.Index)
	if IsUndefinedTable(err) {
		r.db.log.Warn("event_cursors table missing, cursor not persisted",
			"stream", cursor.Stream, "position", cursor.Position.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Reset overwrites the cursor of a stream.
func (r *CursorRepo) Reset(ctx context.Context, stream string, pos domain.Position) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_cursors (stream, last_txn_version, last_event_index, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (stream) DO UPDATE SET
			last_txn_version = EXCLUDED.last_txn_version,
			last_event_index = EXCLUDED.last_event_index,
			updated_at = now()`,
		stream, pos.Version, pos.Index)
	if err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return nil
}

// List returns all cursors ordered by stream.
func (r *CursorRepo) List(ctx context.Context) ([]*domain.Cursor, error) {
	var rows []cursorRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT stream, last_txn_version, last_event_index, updated_at FROM event_cursors ORDER BY stream`)
	if IsUndefinedTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}
	out := make([]*domain.Cursor, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
