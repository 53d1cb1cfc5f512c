// Package recovery dead-letters events the ingestors stepped over.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/infra/storage"
)

// maxReasonLen bounds the stored failure reason.
const maxReasonLen = 1024

// Handler records skipped events so they can be inspected and replayed by hand.
type Handler struct {
	repo storage.SkippedEventRepository
	now  func() time.Time
}

// NewHandler creates a new skipped event handler.
func NewHandler(repo storage.SkippedEventRepository) *Handler {
	return &Handler{repo: repo, now: time.Now}
}

// Record stores the event with the error that made it unmappable.
func (h *Handler) Record(
	ctx context.Context,
	stream string,
	ev domain.RawEvent,
	pos domain.Position,
	cause error,
) error {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}

	skipped := &domain.SkippedEvent{
		ID:           uuid.New().String(),
		Stream:       stream,
		Position:     pos,
		Unpositioned: errors.Is(cause, domain.ErrInvalidPosition),
		RawVersion:   ev.TransactionVersion.String(),
		RawIndex:     ev.EventIndex.String(),
		Type:         ev.Type,
		Reason:       reason,
		Payload:      ev.Data,
		CreatedAt:    h.now(),
	}

	if err := h.repo.Add(ctx, skipped); err != nil {
		return fmt.Errorf("failed to add skipped event %s: %w", skipped.Key(), err)
	}
	return nil
}

// Count returns the number of skipped events of a stream.
func (h *Handler) Count(ctx context.Context, stream string) (int, error) {
	return h.repo.Count(ctx, stream)
}
