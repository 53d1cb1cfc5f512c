// Package cursor tracks the resume position of each event stream.
//
// # Purpose
//
// The cursor is the "bookmark" of a stream: the (transaction version, event
// index) of the last event that was applied. A restarted ingestor resumes
// strictly after it, so no event is skipped and replays are idempotent.
//
// # Key Features
//
// Bootstrap - A stream without a stored cursor starts either at genesis or a
// configurable number of versions behind the ledger tip.
//
// Monotonic Advance - Advance never moves a cursor backwards; only an operator
// Reset may rewind it.
//
// Poller State Machine - Only allows valid transitions:
//
//	IDLE → BOOTSTRAPPING → POLLING → COOLDOWN → POLLING (valid)
//	COOLDOWN → BOOTSTRAPPING (invalid)
//
// # Quick Start
//
//	manager := cursor.NewManager(cursorRepo, fullnode, logger)
//
//	pos := manager.Bootstrap(ctx, "orders_created", cursor.StartOptions{FromLatest: true})
//
//	// After applying a page of events
//	manager.Advance(ctx, "orders_created", lastApplied)
//
//	// Operator rewind
//	manager.Reset(ctx, "orders_created", domain.Position{Version: 1000, Index: -1})
//
// # Package Structure
//
//   - state.go   - Poller states and valid transitions
//   - manager.go - Bootstrap, monotonic advance, reset
//   - metrics.go - Throughput and state history per stream
package cursor

import (
	"log/slog"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/infra/storage"
)

// Cursor represents the resume position of a stream.
type Cursor = domain.Cursor

// NewManager creates a new cursor manager. tip may be nil, in which case
// start-from-latest bootstraps at version 0.
func NewManager(repo storage.CursorRepository, tip TipSource, log *slog.Logger) *DefaultManager {
	if log == nil {
		log = slog.Default()
	}
	return &DefaultManager{
		repo:       repo,
		tip:        tip,
		log:        log.With("component", "cursor"),
		positions:  make(map[string]domain.Position),
		collectors: make(map[string]*MetricsCollector),
	}
}

// NewMetricsCollector creates a new metrics collector with the given window size.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &MetricsCollector{
		windowSize:  windowSize,
		advances:    make([]advanceRecord, 0, windowSize),
		transitions: make([]Transition, 0, 10),
	}
}
