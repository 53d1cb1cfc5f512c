package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/infra/storage/memory"
)

type failingRepo struct{ captureRepo }

func (failingRepo) Add(context.Context, *domain.SkippedEvent) error {
	return errors.New("db down")
}

func TestHandler_Record(t *testing.T) {
	repo := memory.NewSkippedRepo(memory.NewMemoryStorage())
	h := NewHandler(repo)
	ctx := context.Background()

	ev := domain.RawEvent{Type: "0x1::registry::SellerRegistered", Data: json.RawMessage(`{"profile_hash":"x"}`)}
	pos := domain.Position{Version: 7, Index: 1}

	if err := h.Record(ctx, domain.StreamAccounts, ev, pos, errors.New("malformed event: invalid hash format: x")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// Same position recorded again is a no-op
	if err := h.Record(ctx, domain.StreamAccounts, ev, pos, errors.New("again")); err != nil {
		t.Fatalf("Record duplicate: %v", err)
	}

	n, err := h.Count(ctx, domain.StreamAccounts)
	if err != nil || n != 1 {
		t.Errorf("Count = %d, %v", n, err)
	}
	if n, _ := h.Count(ctx, domain.StreamStaking); n != 0 {
		t.Errorf("other stream count = %d", n)
	}
}

func TestHandler_RecordUnpositionedEventsAreKept(t *testing.T) {
	repo := memory.NewSkippedRepo(memory.NewMemoryStorage())
	h := NewHandler(repo)
	ctx := context.Background()

	for _, raw := range []string{"abc", "18446744073709551615"} {
		ev := domain.RawEvent{TransactionVersion: json.Number(raw), EventIndex: "0", Type: "0x1::orders::OrderCreated"}
		_, posErr := ev.Position()
		if !errors.Is(posErr, domain.ErrInvalidPosition) {
			t.Fatalf("Position(%q) error = %v", raw, posErr)
		}
		if err := h.Record(ctx, domain.StreamOrdersCreated, ev, domain.Position{}, posErr); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	// A real event at 0:0 does not collide with them either
	if err := h.Record(ctx, domain.StreamOrdersCreated, domain.RawEvent{}, domain.Position{}, errors.New("malformed event")); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if n, _ := h.Count(ctx, domain.StreamOrdersCreated); n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}

func TestHandler_RecordKeepsRawPosition(t *testing.T) {
	var stored *domain.SkippedEvent
	h := NewHandler(captureRepo(func(ev *domain.SkippedEvent) { stored = ev }))

	ev := domain.RawEvent{TransactionVersion: "v12", EventIndex: "3"}
	_, posErr := ev.Position()
	if err := h.Record(context.Background(), domain.StreamStaking, ev, domain.Position{}, posErr); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !stored.Unpositioned || stored.RawVersion != "v12" || stored.RawIndex != "3" {
		t.Errorf("stored = %+v", stored)
	}
	if !strings.HasPrefix(stored.Key(), "unpositioned:") {
		t.Errorf("key = %s", stored.Key())
	}
}

func TestHandler_RecordTruncatesReason(t *testing.T) {
	var stored *domain.SkippedEvent
	h := NewHandler(captureRepo(func(ev *domain.SkippedEvent) { stored = ev }))
	h.now = func() time.Time { return time.Unix(100, 0) }

	err := h.Record(context.Background(), domain.StreamOrdersCreated, domain.RawEvent{}, domain.Position{Version: 1}, errors.New(strings.Repeat("x", 5000)))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(stored.Reason) != maxReasonLen {
		t.Errorf("reason length = %d", len(stored.Reason))
	}
	if _, err := uuid.Parse(stored.ID); err != nil {
		t.Errorf("id %q is not a uuid", stored.ID)
	}
	if !stored.CreatedAt.Equal(time.Unix(100, 0)) {
		t.Errorf("created at = %v", stored.CreatedAt)
	}
}

func TestHandler_RecordError(t *testing.T) {
	h := NewHandler(failingRepo{})
	if err := h.Record(context.Background(), "accounts", domain.RawEvent{}, domain.Position{}, nil); err == nil {
		t.Error("expected error")
	}
}

type captureRepo func(*domain.SkippedEvent)

func (c captureRepo) Add(_ context.Context, ev *domain.SkippedEvent) error { c(ev); return nil }
func (captureRepo) Count(context.Context, string) (int, error)             { return 0, nil }
func (captureRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}
