package health

import (
	"context"
	"sync"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/cursor"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/indexer"
	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/routing"
)

// StatusSource is a poller whose session state can be inspected.
type StatusSource interface {
	GetStatus() indexer.Status
}

// SkippedCounter counts dead-lettered events.
type SkippedCounter interface {
	Count(ctx context.Context, stream string) (int, error)
}

// TipSource reports the latest ledger version, 0 when unknown.
type TipSource interface {
	LatestLedgerVersion(ctx context.Context) int64
}

// ProgressSource reports cursor progress per stream.
type ProgressSource interface {
	GetMetrics(stream string) cursor.Metrics
}

// EndpointSource reports the upstream endpoints a stream polls.
type EndpointSource interface {
	Health() []routing.EndpointStatus
}

// Pinger checks a storage backend.
type Pinger interface {
	Health(ctx context.Context) error
}

// Thresholds controls when a stream is reported degraded or critical.
type Thresholds struct {
	LagDegraded int64         `yaml:"lag_degraded"`
	LagCritical int64         `yaml:"lag_critical"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LagDegraded: 10_000,
		LagCritical: 1_000_000,
		CacheTTL:    10 * time.Second,
	}
}

// Monitor aggregates health status from the stream pollers.
type Monitor struct {
	pollers    []StatusSource
	skipped    SkippedCounter
	tip        TipSource
	thresholds Thresholds
	progress   ProgressSource
	database   Pinger
	endpoints  map[string]EndpointSource
	now        func() time.Time
	lastCheck  time.Time
	lastReport map[string]StreamHealth
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. skipped and tip may be nil.
func NewMonitor(pollers []StatusSource, skipped SkippedCounter, tip TipSource, thresholds Thresholds) *Monitor {
	return &Monitor{
		pollers:    pollers,
		skipped:    skipped,
		tip:        tip,
		thresholds: thresholds,
		endpoints:  make(map[string]EndpointSource),
		now:        time.Now,
		lastReport: make(map[string]StreamHealth),
	}
}

// WithProgress adds cursor throughput to the report.
func (m *Monitor) WithProgress(p ProgressSource) *Monitor {
	m.progress = p
	return m
}

// WithDatabase adds a database check to the detailed report.
func (m *Monitor) WithDatabase(p Pinger) *Monitor {
	m.database = p
	return m
}

// WithEndpoints adds the endpoint health of stream to the report.
func (m *Monitor) WithEndpoints(stream string, src EndpointSource) *Monitor {
	m.endpoints[stream] = src
	return m
}

// CheckDatabase returns "ok", the ping error, or "" when no database is configured.
func (m *Monitor) CheckDatabase(ctx context.Context) string {
	if m.database == nil {
		return ""
	}
	if err := m.database.Health(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

// CheckHealth performs a health check for all streams.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]StreamHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	// Rate limit checks to avoid hammering the fullnode
	if now.Sub(m.lastCheck) < m.thresholds.CacheTTL && len(m.lastReport) > 0 {
		return m.lastReport
	}

	var tip int64
	if m.tip != nil {
		tip = m.tip.LatestLedgerVersion(ctx)
	}

	report := make(map[string]StreamHealth, len(m.pollers))
	for _, p := range m.pollers {
		st := p.GetStatus()
		h := StreamHealth{
			Stream:      st.Stream,
			Status:      StatusHealthy,
			State:       string(st.State),
			Description: cursor.StateDescription(st.State),
			Version:     st.Position.Version,
			EventIndex:  st.Position.Index,
			Applied:     st.Applied,
			Errors:      st.Errors,
			LastError:   st.LastError,
		}
		if !st.LastTickAt.IsZero() {
			at := st.LastTickAt
			h.LastTickAt = &at
		}
		if st.InCooldown(now) {
			until := st.CooldownUntil
			h.CooldownUntil = &until
		}
		if tip > 0 && st.Position.Version >= 0 {
			h.LagVersions = max(tip-st.Position.Version, 0)
		}
		if m.progress != nil {
			h.VersionsPerSecond = m.progress.GetMetrics(st.Stream).VersionsPerSecond
		}
		currentDown := false
		if src, ok := m.endpoints[st.Stream]; ok {
			h.Endpoints = src.Health()
			for _, e := range h.Endpoints {
				if e.Current && !e.Available {
					currentDown = true
				}
			}
		}
		if m.skipped != nil {
			if n, err := m.skipped.Count(ctx, st.Stream); err == nil {
				h.SkippedEvents = n
			}
		}

		switch {
		case st.State == cursor.StateStopped || h.LagVersions > m.thresholds.LagCritical:
			h.Status = StatusCritical
		case h.CooldownUntil != nil || h.LagVersions > m.thresholds.LagDegraded || h.SkippedEvents > 0 || currentDown:
			h.Status = StatusDegraded
		}

		report[st.Stream] = h
	}

	m.lastCheck = now
	m.lastReport = report
	return report
}
