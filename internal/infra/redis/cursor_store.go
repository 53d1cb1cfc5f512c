package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

const maxWatchRetries = 5

// CursorStore implements storage.CursorRepository on Redis hashes.
// Each stream is stored at <prefix>:cursor:<stream> with version, index and updated_at fields.
type CursorStore struct {
	client *Client
}

// NewCursorStore creates a Redis-backed cursor store.
func NewCursorStore(client *Client) *CursorStore {
	return &CursorStore{client: client}
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readCursor(ctx context.Context, c hashReader, key, stream string) (*domain.Cursor, error) {
	fields, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor version %q: %w", fields["version"], err)
	}
	index, err := strconv.ParseInt(fields["index"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor index %q: %w", fields["index"], err)
	}
	cur := &domain.Cursor{
		Stream:   stream,
		Position: domain.Position{Version: version, Index: index},
	}
	if ms, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		cur.UpdatedAt = time.UnixMilli(ms)
	}
	return cur, nil
}

// Get returns the cursor of a stream, or nil when none is stored.
func (s *CursorStore) Get(ctx context.Context, stream string) (*domain.Cursor, error) {
	return readCursor(ctx, s.client.rdb, s.client.cursorKey(stream), stream)
}

// Save stores the cursor if it is after the stored one. The compare and write run
// under WATCH so concurrent writers cannot move the cursor backwards.
func (s *CursorStore) Save(ctx context.Context, cursor *domain.Cursor) error {
	key := s.client.cursorKey(cursor.Stream)

	txf := func(tx *redis.Tx) error {
		cur, err := readCursor(ctx, tx, key, cursor.Stream)
		if err != nil {
			return err
		}
		if cur != nil && !cursor.Position.After(cur.Position) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.write(ctx, pipe, key, cursor.Stream, cursor.Position)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to save cursor: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to save cursor %s: too much contention", cursor.Stream)
}

// Reset overwrites the cursor of a stream.
func (s *CursorStore) Reset(ctx context.Context, stream string, pos domain.Position) error {
	key := s.client.cursorKey(stream)
	_, err := s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.write(ctx, pipe, key, stream, pos)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return nil
}

// List returns all stored cursors ordered by stream.
func (s *CursorStore) List(ctx context.Context) ([]*domain.Cursor, error) {
	streams, err := s.client.rdb.SMembers(ctx, s.client.streamsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}
	sort.Strings(streams)

	out := make([]*domain.Cursor, 0, len(streams))
	for _, stream := range streams {
		cur, err := s.Get(ctx, stream)
		if err != nil {
			return nil, err
		}
		if cur != nil {
			out = append(out, cur)
		}
	}
	return out, nil
}

func (s *CursorStore) write(ctx context.Context, pipe redis.Pipeliner, key, stream string, pos domain.Position) {
	pipe.HSet(ctx, key,
		"version", strconv.FormatInt(pos.Version, 10),
		"index", strconv.FormatInt(pos.Index, 10),
		"updated_at", strconv.FormatInt(time.Now().UnixMilli(), 10),
	)
	pipe.SAdd(ctx, s.client.streamsKey(), stream)
}
