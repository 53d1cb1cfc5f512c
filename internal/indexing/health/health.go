// Package health provides ingestor health monitoring and status reporting.
package health

import (
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/routing"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// StreamHealth contains health data for one event stream.
type StreamHealth struct {
	Stream            string       `json:"stream"`
	Status            SystemStatus `json:"status"`
	State             string       `json:"state"`
	Description       string       `json:"description"`
	Version           int64        `json:"version"`
	EventIndex        int64        `json:"event_index"`
	LagVersions       int64        `json:"lag_versions"`
	VersionsPerSecond float64      `json:"versions_per_second"`
	LastTickAt        *time.Time   `json:"last_tick_at,omitempty"`
	CooldownUntil     *time.Time   `json:"cooldown_until,omitempty"`
	Applied           uint64       `json:"applied"`
	SkippedEvents     int          `json:"skipped_events"`
	Errors            uint64       `json:"errors"`
	LastError         string       `json:"last_error,omitempty"`

	Endpoints []routing.EndpointStatus `json:"endpoints,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus            `json:"system_status"`
	Database     string                  `json:"database,omitempty"`
	Streams      map[string]StreamHealth `json:"streams"`
}

// Aggregate returns the worst status in the report.
func Aggregate(streams map[string]StreamHealth) SystemStatus {
	status := StatusHealthy
	for _, s := range streams {
		if s.Status == StatusCritical {
			return StatusCritical
		}
		if s.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}
