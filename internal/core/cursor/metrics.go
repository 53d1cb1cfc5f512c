package cursor

import (
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

// advanceRecord holds timing data for a cursor advance.
type advanceRecord struct {
	Position   domain.Position
	AdvancedAt time.Time
}

// Metrics holds cursor progress data for a stream.
type Metrics struct {
	VersionsPerSecond float64
	LastAdvanceAt     *time.Time
	LastCooldownAt    *time.Time
	StateHistory      []Transition
}

// MetricsCollector tracks cursor progress over time.
type MetricsCollector struct {
	windowSize     int             // number of advances to track
	advances       []advanceRecord // ring buffer of advances
	transitions    []Transition    // recent state changes
	lastCooldownAt *time.Time
}

// RecordAdvance records a cursor advance.
func (mc *MetricsCollector) RecordAdvance(pos domain.Position, at time.Time) {
	record := advanceRecord{Position: pos, AdvancedAt: at}

	if len(mc.advances) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.advances, mc.advances[1:])
		mc.advances[len(mc.advances)-1] = record
	} else {
		mc.advances = append(mc.advances, record)
	}
}

// RecordTransition records a state transition.
func (mc *MetricsCollector) RecordTransition(t Transition) {
	// Keep only last 10 transitions
	if len(mc.transitions) >= 10 {
		copy(mc.transitions, mc.transitions[1:])
		mc.transitions[len(mc.transitions)-1] = t
	} else {
		mc.transitions = append(mc.transitions, t)
	}

	if t.To == StateCooldown {
		at := t.Timestamp
		mc.lastCooldownAt = &at
	}
}

// GetMetrics returns current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	m := Metrics{
		LastCooldownAt: mc.lastCooldownAt,
		StateHistory:   make([]Transition, len(mc.transitions)),
	}
	copy(m.StateHistory, mc.transitions)

	if n := len(mc.advances); n > 0 {
		last := mc.advances[n-1].AdvancedAt
		m.LastAdvanceAt = &last
	}

	if len(mc.advances) >= 2 {
		first := mc.advances[0]
		last := mc.advances[len(mc.advances)-1]
		duration := last.AdvancedAt.Sub(first.AdvancedAt)

		if duration > 0 {
			versions := float64(last.Position.Version - first.Position.Version)
			m.VersionsPerSecond = versions / duration.Seconds()
		}
	}

	return m
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.advances = mc.advances[:0]
	mc.transitions = mc.transitions[:0]
	mc.lastCooldownAt = nil
}
