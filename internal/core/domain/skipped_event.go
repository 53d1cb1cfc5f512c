package domain

import (
	"encoding/json"
	"time"
)

// SkippedEvent records an event the ingester could not map and stepped over.
// Unpositioned events carry no usable Position; RawVersion and RawIndex keep
// what the indexer sent.
type SkippedEvent struct {
	ID           string
	Stream       string
	Position     Position
	Unpositioned bool
	RawVersion   string
	RawIndex     string
	Type         string
	Reason       string
	Payload      json.RawMessage
	CreatedAt    time.Time
}

// Key deduplicates skipped events within a stream. Unpositioned events have
// no stable identity and are always kept.
func (s *SkippedEvent) Key() string {
	if s.Unpositioned {
		return "unpositioned:" + s.ID
	}
	return s.Position.String()
}
