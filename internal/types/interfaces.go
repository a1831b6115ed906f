package types

import (
	"context"
	"time"
)

// PlotRegistry is the storage abstraction over the authoritative plot state.
// The core logic depends on this interface rather than a concrete store so
// the persistence technology stays swappable; the production implementation
// lives in internal/db.
//
// Concurrency contract: Upsert performs replace-or-insert keyed by id and is
// last-write-wins from the caller's perspective. Serialization of
// read-modify-write cycles on the same id is the mutation layer's job
// (internal/rental.Service), not the registry's.
type PlotRegistry interface {
	// Get returns the record for the given plot id, or ErrCodeNotFoundPlot
	// if no record exists. It has no side effects.
	Get(ctx context.Context, id int) (*PlotRecord, error)

	// IsActive reports whether a record exists whose rental end date is
	// strictly after now. Computed on read, never trusted from a stored flag.
	IsActive(ctx context.Context, id int, now time.Time) (bool, error)

	// ListActive returns every record active at now, ordered by plot id.
	ListActive(ctx context.Context, now time.Time) ([]*PlotRecord, error)

	// ListByOwner returns all records for an owner identity, ordered by
	// plot id. Includes expired records that have not yet been swept.
	ListByOwner(ctx context.Context, owner string) ([]*PlotRecord, error)

	// Upsert replaces or inserts the record keyed by its id.
	Upsert(ctx context.Context, record *PlotRecord) error

	// RemoveExpired deletes every record with rental_end_date < now and
	// returns the removed plot ids for notification and audit.
	RemoveExpired(ctx context.Context, now time.Time) ([]int, error)

	// Reset clears all records. Administrative/test operation.
	Reset(ctx context.Context) error
}

// EventLedger records processed provider event ids for webhook deduplication.
type EventLedger interface {
	// MarkProcessed records the event id and reports whether it was new.
	// A false return means the event was already processed and the delivery
	// is a duplicate.
	MarkProcessed(ctx context.Context, eventID string, eventType ProviderEventType) (bool, error)
}

// WebhookVerifier authenticates an inbound provider event payload against a
// shared signing secret. Verification happens before any parsing.
type WebhookVerifier interface {
	Verify(payload []byte, sigHeader string, secret string) error
}
