// Package routing handles endpoint selection, rotation, and error classification.
//
// This package contains:
//   - EndpointPool: ordered endpoints with a round-robin rotation index
//   - ClassifyError: maps upstream failures to the signal that drives backoff
package routing

import (
	"sync"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/provider"
)

// EndpointPool holds an ordered, de-duplicated list of providers and the index
// of the one currently in use. The index only moves on Rotate.
type EndpointPool[P provider.Provider] struct {
	mu        sync.RWMutex
	providers []P
	index     int
}

// NewEndpointPool creates a pool; providers with an endpoint already present are dropped.
func NewEndpointPool[P provider.Provider](providers ...P) *EndpointPool[P] {
	seen := make(map[string]bool, len(providers))
	unique := make([]P, 0, len(providers))
	for _, p := range providers {
		if seen[p.Endpoint()] {
			continue
		}
		seen[p.Endpoint()] = true
		unique = append(unique, p)
	}
	return &EndpointPool[P]{providers: unique}
}

// Current returns the provider in use.
func (ep *EndpointPool[P]) Current() P {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.providers[ep.index]
}

// Len returns the number of endpoints.
func (ep *EndpointPool[P]) Len() int {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return len(ep.providers)
}

// Endpoints returns the endpoint URLs in rotation order.
func (ep *EndpointPool[P]) Endpoints() []string {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	out := make([]string, len(ep.providers))
	for i, p := range ep.providers {
		out[i] = p.Endpoint()
	}
	return out
}

// RetryAfter returns the Retry-After window still open on endpoint, 0 when the
// endpoint is not in the pool.
func (ep *EndpointPool[P]) RetryAfter(endpoint string) time.Duration {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	for _, p := range ep.providers {
		if p.Endpoint() == endpoint {
			return p.RetryAfter()
		}
	}
	return 0
}

// EndpointStatus is the health of one pooled endpoint.
type EndpointStatus struct {
	Name       string                `json:"name"`
	Endpoint   string                `json:"endpoint"`
	Current    bool                  `json:"current"`
	Available  bool                  `json:"available"`
	RetryAfter time.Duration         `json:"retry_after,omitempty"`
	Health     provider.HealthStatus `json:"health"`
}

// Health reports every endpoint in rotation order.
func (ep *EndpointPool[P]) Health() []EndpointStatus {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	out := make([]EndpointStatus, len(ep.providers))
	for i, p := range ep.providers {
		out[i] = EndpointStatus{
			Name:       p.GetName(),
			Endpoint:   p.Endpoint(),
			Current:    i == ep.index,
			Available:  p.IsAvailable(),
			RetryAfter: p.RetryAfter(),
			Health:     p.GetHealth(),
		}
	}
	return out
}

// RotateFrom advances to the next endpoint round-robin, but only when endpoint is
// the one currently in use and the pool has more than one endpoint. It returns the
// previous and next endpoint URLs.
func (ep *EndpointPool[P]) RotateFrom(endpoint string) (from, to string, rotated bool) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if len(ep.providers) < 2 {
		return "", "", false
	}
	current := ep.providers[ep.index].Endpoint()
	if endpoint != "" && endpoint != current {
		return "", "", false
	}
	ep.index = (ep.index + 1) % len(ep.providers)
	return current, ep.providers[ep.index].Endpoint(), true
}
