// Package worker holds background maintenance jobs.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/infra/storage"
)

// Pruner deletes skipped events older than the retention period.
type Pruner struct {
	retention time.Duration
	repo      storage.SkippedEventRepository
	log       *slog.Logger
	now       func() time.Time
}

// NewPruner creates a new Pruner worker. A non-positive retention disables it.
func NewPruner(retention time.Duration, repo storage.SkippedEventRepository, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		retention: retention,
		repo:      repo,
		log:       log.With("component", "pruner"),
		now:       time.Now,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check at 10% of the retention period, between 1 minute and 1 hour
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune deletes expired skipped events once and returns how many were removed.
func (p *Pruner) Prune(ctx context.Context) int64 {
	threshold := p.now().Add(-p.retention)

	n, err := p.repo.DeleteOlderThan(ctx, threshold)
	if err != nil {
		p.log.Error("Failed to prune skipped events", "error", err)
		return 0
	}
	if n > 0 {
		p.log.Info("Pruned skipped events", "count", n, "before", threshold)
	}
	return n
}
