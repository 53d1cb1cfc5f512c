// Package indexer runs the cursor-based polling loop shared by all event streams.
package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/cursor"
	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/throttle"
	"github.com/cyl19970726/haigo-sub001/internal/infra/chain/aptos"
)

// Indexer is a long-running stream poller.
type Indexer interface {
	// Start bootstraps the cursor and polls until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the indexer
	Stop() error

	// GetStatus returns current indexing status
	GetStatus() Status
}

// Status is a snapshot of a poller's session state.
type Status struct {
	Stream        string
	State         cursor.State
	Running       bool
	Position      domain.Position
	CooldownUntil time.Time
	LastPause     time.Duration
	LastError     string
	LastTickAt    time.Time
	Applied       uint64
	Skipped       uint64
	Duplicates    uint64
	Errors        uint64
}

// InCooldown reports whether ticks are currently suspended.
func (s Status) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// Handler maps and persists the events of one stream.
type Handler interface {
	EventTypes() []string
	IncludeTxnMeta() bool
	Apply(ctx context.Context, ev domain.RawEvent, pos domain.Position) error
}

// EventFetcher pages events from the indexer.
type EventFetcher interface {
	FetchEvents(ctx context.Context, q aptos.EventQuery) ([]domain.RawEvent, error)
}

// Backoff decides the cooldown after a failed tick.
type Backoff interface {
	Pause(err error) throttle.Decision
	Reset()
}

// SkipRecorder dead-letters events that can never be applied.
type SkipRecorder interface {
	Record(ctx context.Context, stream string, ev domain.RawEvent, pos domain.Position, cause error) error
}

// Metrics is the sink for poller metrics.
type Metrics interface {
	SetLastVersion(stream string, version int64)
	IncEvents(stream, outcome string)
	IncError(stream, kind string)
	SetCooldown(stream string, d time.Duration)
	ObserveTick(stream string, d time.Duration)
}

// Config holds indexer configuration
type Config struct {
	Stream          string
	Handler         Handler
	Fetcher         EventFetcher
	Cursor          cursor.Manager
	Backoff         Backoff
	Recovery        SkipRecorder
	Metrics         Metrics
	Start           cursor.StartOptions
	Interval        time.Duration
	PageSize        int
	MaxPagesPerTick int
	PageDelay       time.Duration
	Logger          *slog.Logger
}

type nopMetrics struct{}

func (nopMetrics) SetLastVersion(string, int64)      {}
func (nopMetrics) IncEvents(string, string)          {}
func (nopMetrics) IncError(string, string)           {}
func (nopMetrics) SetCooldown(string, time.Duration) {}
func (nopMetrics) ObserveTick(string, time.Duration) {}
