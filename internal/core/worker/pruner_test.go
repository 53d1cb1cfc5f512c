package worker

import (
	"context"
	"testing"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/infra/storage/memory"
)

func TestPruner_Prune(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSkippedRepo(memory.NewMemoryStorage())
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, age := range []time.Duration{time.Hour, 48 * time.Hour, 10 * 24 * time.Hour} {
		repo.Add(ctx, &domain.SkippedEvent{
			ID:        string(rune('a' + i)),
			Stream:    domain.StreamAccounts,
			Position:  domain.Position{Version: int64(i)},
			CreatedAt: now.Add(-age),
		})
	}

	p := NewPruner(24*time.Hour, repo, nil)
	p.now = func() time.Time { return now }

	if n := p.Prune(ctx); n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}
	if left, _ := repo.Count(ctx, domain.StreamAccounts); left != 1 {
		t.Errorf("remaining = %d, want 1", left)
	}
}

func TestPruner_DisabledReturnsImmediately(t *testing.T) {
	p := NewPruner(0, memory.NewSkippedRepo(memory.NewMemoryStorage()), nil)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled pruner should return")
	}
}
