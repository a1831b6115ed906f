package db

import (
	"context"

	"plotmarket/internal/types"
)

// EventRepository records processed webhook event ids for deduplication.
// Implements types.EventLedger.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// MarkProcessed claims the event id. Returns true if this call claimed it
// (first delivery), false if the id was already recorded. The primary-key
// conflict makes the claim atomic under concurrent redeliveries; callers run
// this inside the same transaction as the state mutation so a failed
// mutation releases the claim on rollback.
func (r *EventRepository) MarkProcessed(ctx context.Context, eventID string, eventType types.ProviderEventType) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO processed_events (event_id, event_type)
		 VALUES ($1, $2)
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record processed event", err)
	}
	return tag.RowsAffected() == 1, nil
}

var _ types.EventLedger = (*EventRepository)(nil)
