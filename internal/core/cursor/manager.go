package cursor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/infra/storage"
)

// ErrCursorRegression is returned when Advance is given a position before the current one.
var ErrCursorRegression = errors.New("cursor regression")

// TipSource reports the latest ledger version, or 0 when unknown.
type TipSource interface {
	LatestLedgerVersion(ctx context.Context) int64
}

// StartOptions controls where a stream without a stored cursor begins.
type StartOptions struct {
	FromLatest     bool
	OffsetVersions int64
}

// Manager handles stream cursors.
type Manager interface {
	// Bootstrap returns the position to resume after. It never fails: store
	// errors fall back to the configured start position.
	Bootstrap(ctx context.Context, stream string, opts StartOptions) domain.Position

	// Get retrieves the stored cursor of a stream, nil when absent.
	Get(ctx context.Context, stream string) (*domain.Cursor, error)

	// Advance persists pos as the stream's cursor (must not move backwards).
	Advance(ctx context.Context, stream string, pos domain.Position) error

	// Reset rewinds or forwards a cursor unconditionally.
	Reset(ctx context.Context, stream string, pos domain.Position) error

	// List returns all stored cursors.
	List(ctx context.Context) ([]*domain.Cursor, error)

	// RecordTransition records a poller state change for the stream.
	RecordTransition(stream string, t Transition)

	// GetMetrics returns progress metrics for a stream.
	GetMetrics(stream string) Metrics

	// SetStateChangeCallback registers callback for state changes.
	SetStateChangeCallback(fn func(stream string, t Transition))
}

// DefaultManager implements Manager over a CursorRepository.
type DefaultManager struct {
	repo          storage.CursorRepository
	tip           TipSource
	log           *slog.Logger
	mu            sync.RWMutex
	positions     map[string]domain.Position
	collectors    map[string]*MetricsCollector
	stateCallback func(string, Transition)
}

// Bootstrap resolves the start position of a stream:
//   - stored cursor: resume after it
//   - FromLatest: ledger tip minus OffsetVersions (clamped to [0, tip]), index -1
//   - otherwise: genesis
//
// The derived position is not persisted; the first Advance stores it.
func (m *DefaultManager) Bootstrap(ctx context.Context, stream string, opts StartOptions) domain.Position {
	pos, source := m.resolveStart(ctx, stream, opts)

	m.mu.Lock()
	m.positions[stream] = pos
	if _, ok := m.collectors[stream]; !ok {
		m.collectors[stream] = NewMetricsCollector(100)
	}
	m.mu.Unlock()

	m.log.Info("Cursor bootstrapped", "stream", stream, "position", pos.String(), "source", source)
	return pos
}

func (m *DefaultManager) resolveStart(ctx context.Context, stream string, opts StartOptions) (domain.Position, string) {
	stored, err := m.repo.Get(ctx, stream)
	if err != nil {
		m.log.Warn("Failed loading cursor, treating as absent", "stream", stream, "error", err)
	} else if stored != nil {
		return stored.Position, "stored"
	}

	if !opts.FromLatest {
		return domain.Genesis, "genesis"
	}

	var tip int64
	if m.tip != nil {
		tip = m.tip.LatestLedgerVersion(ctx)
	}
	offset := min(max(opts.OffsetVersions, 0), max(tip, 0))
	start := max(tip-offset, 0)

	m.log.Info("Starting from latest ledger", "stream", stream, "ledger", tip, "offset", offset, "start", start)
	return domain.Position{Version: start, Index: -1}, "latest"
}

// Get retrieves the stored cursor of a stream.
func (m *DefaultManager) Get(ctx context.Context, stream string) (*domain.Cursor, error) {
	return m.repo.Get(ctx, stream)
}

// Advance persists the cursor after a page of events has been applied.
func (m *DefaultManager) Advance(ctx context.Context, stream string, pos domain.Position) error {
	m.mu.RLock()
	current, known := m.positions[stream]
	m.mu.RUnlock()

	if known {
		switch pos.Compare(current) {
		case -1:
			return fmt.Errorf("%w: %s is before %s", ErrCursorRegression, pos, current)
		case 0:
			return nil
		}
	}

	now := time.Now()
	if err := m.repo.Save(ctx, &domain.Cursor{Stream: stream, Position: pos, UpdatedAt: now}); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}

	m.mu.Lock()
	m.positions[stream] = pos
	if collector, ok := m.collectors[stream]; ok {
		collector.RecordAdvance(pos, now)
	}
	m.mu.Unlock()

	return nil
}

// Reset overwrites the stored cursor.
func (m *DefaultManager) Reset(ctx context.Context, stream string, pos domain.Position) error {
	if err := m.repo.Reset(ctx, stream, pos); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}

	m.mu.Lock()
	m.positions[stream] = pos
	if collector, ok := m.collectors[stream]; ok {
		collector.Reset()
	}
	m.mu.Unlock()

	m.log.Warn("Cursor reset", "stream", stream, "position", pos.String())
	return nil
}

// List returns all stored cursors.
func (m *DefaultManager) List(ctx context.Context) ([]*domain.Cursor, error) {
	return m.repo.List(ctx)
}

// RecordTransition records a poller state change.
func (m *DefaultManager) RecordTransition(stream string, t Transition) {
	m.mu.Lock()
	collector, ok := m.collectors[stream]
	if !ok {
		collector = NewMetricsCollector(100)
		m.collectors[stream] = collector
	}
	collector.RecordTransition(t)
	callback := m.stateCallback
	m.mu.Unlock()

	if callback != nil {
		callback(stream, t)
	}
}

// GetMetrics returns progress metrics for a stream.
func (m *DefaultManager) GetMetrics(stream string) Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if collector, ok := m.collectors[stream]; ok {
		return collector.GetMetrics()
	}

	return Metrics{}
}

// SetStateChangeCallback registers a callback for state changes.
func (m *DefaultManager) SetStateChangeCallback(fn func(stream string, t Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCallback = fn
}
