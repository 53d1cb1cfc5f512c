// Package provider implements upstream HTTP endpoints.
//
// This package contains:
//   - Provider interface: core abstraction for an upstream endpoint
//   - HTTPProvider: JSON over HTTP (GraphQL POST and REST GET)
//   - ProviderMonitor: health and rate tracking
//   - StatusError: non-2xx responses, flagged when they carry a throttle signal
package provider

import (
	"time"
)

// Provider defines the core interface for any upstream endpoint.
// It serves as the base abstraction for health checking, metrics, and lifecycle management.
type Provider interface {
	// GetName returns provider identifier (e.g., "indexer-0", "fullnode")
	GetName() string

	// Endpoint returns the base URL
	Endpoint() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// RetryAfter returns how long the upstream asked us to back off, 0 when it did not
	RetryAfter() time.Duration

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}
