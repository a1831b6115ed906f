package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"plotmarket/internal/types"
)

// PlotRepository provides data access for the plots table. It implements the
// types.PlotRegistry storage abstraction and adds the guarded mutation
// primitives used by the rental service.
//
// Key invariants:
//   - Activity is computed on read against the caller-supplied clock, never
//     trusted from a stored flag.
//   - CreateIfInactive and ExtendActive are single guarded statements whose
//     WHERE clauses enforce the no-double-sale and extend-from-stored-end
//     rules atomically; Postgres row locking serializes concurrent writers
//     on the same plot id.
type PlotRepository struct {
	db DBTX
}

// NewPlotRepository creates a new PlotRepository backed by the given database
// connection (pool or transaction).
func NewPlotRepository(db DBTX) *PlotRepository {
	return &PlotRepository{db: db}
}

// plotColumns defines the standard set of columns selected for plot queries.
// Used consistently across all query methods to avoid column drift.
const plotColumns = `p.id, p.sold_to, p.user_email, p.rental_term,
	p.sold_at, p.rental_end_date, p.updated_at`

// scanPlot scans a single plot row into a types.PlotRecord.
// The columns must match the order defined in plotColumns.
func scanPlot(row pgx.Row) (*types.PlotRecord, error) {
	var rec types.PlotRecord
	err := row.Scan(
		&rec.ID,
		&rec.SoldTo,
		&rec.UserEmail,
		&rec.RentalTerm,
		&rec.SoldAt,
		&rec.RentalEndDate,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get retrieves the rental record for a plot id.
// Returns ErrCodeNotFoundPlot if no record exists.
func (r *PlotRepository) Get(ctx context.Context, id int) (*types.PlotRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+plotColumns+` FROM plots p WHERE p.id = $1`,
		id,
	)

	rec, err := scanPlot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPlot, "plot not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve plot", err)
	}
	return rec, nil
}

// IsActive reports whether the plot has a record whose end date is strictly
// after now. The strict comparison makes a plot expiring exactly at now
// inactive.
func (r *PlotRepository) IsActive(ctx context.Context, id int, now time.Time) (bool, error) {
	var active bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM plots WHERE id = $1 AND rental_end_date > $2)`,
		id, now,
	).Scan(&active)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check plot activity", err)
	}
	return active, nil
}

// ListActive returns all records active at now, ordered by plot id.
func (r *PlotRepository) ListActive(ctx context.Context, now time.Time) ([]*types.PlotRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+plotColumns+` FROM plots p WHERE p.rental_end_date > $1 ORDER BY p.id`,
		now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active plots", err)
	}
	defer rows.Close()

	return collectPlots(rows)
}

// ListByOwner returns all records for the given owner identity, ordered by
// plot id. Expired-but-unswept records are included so owners can see lapsed
// rentals until the next sweep.
func (r *PlotRepository) ListByOwner(ctx context.Context, owner string) ([]*types.PlotRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+plotColumns+` FROM plots p WHERE p.sold_to = $1 ORDER BY p.id`,
		owner,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list plots by owner", err)
	}
	defer rows.Close()

	return collectPlots(rows)
}

// Upsert replaces or inserts the record keyed by its id. Last-write-wins;
// callers needing read-modify-write serialization go through the guarded
// mutations instead.
func (r *PlotRepository) Upsert(ctx context.Context, rec *types.PlotRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO plots (id, sold_to, user_email, rental_term, sold_at, rental_end_date, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (id) DO UPDATE SET
		   sold_to = EXCLUDED.sold_to,
		   user_email = EXCLUDED.user_email,
		   rental_term = EXCLUDED.rental_term,
		   sold_at = EXCLUDED.sold_at,
		   rental_end_date = EXCLUDED.rental_end_date,
		   updated_at = NOW()`,
		rec.ID, rec.SoldTo, rec.UserEmail, rec.RentalTerm, rec.SoldAt, rec.RentalEndDate,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert plot", err)
	}
	return nil
}

// CreateIfInactive inserts the record, or replaces an existing record only if
// that record is already expired at now. Returns false when the plot is
// currently active (the no-double-sale rule); the caller maps that to
// conflict_plot_already_active.
//
// The guard lives in the statement itself so two concurrent first sales of
// the same plot resolve to exactly one winner without an explicit lock.
func (r *PlotRepository) CreateIfInactive(ctx context.Context, rec *types.PlotRecord, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO plots (id, sold_to, user_email, rental_term, sold_at, rental_end_date, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (id) DO UPDATE SET
		   sold_to = EXCLUDED.sold_to,
		   user_email = EXCLUDED.user_email,
		   rental_term = EXCLUDED.rental_term,
		   sold_at = EXCLUDED.sold_at,
		   rental_end_date = EXCLUDED.rental_end_date,
		   updated_at = NOW()
		 WHERE plots.rental_end_date <= $7`,
		rec.ID, rec.SoldTo, rec.UserEmail, rec.RentalTerm, rec.SoldAt, rec.RentalEndDate, now,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to create plot rental", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExtendActive extends an active rental by duration and records the new term.
// The new end date is computed from the stored rental_end_date, never from
// now or from any value carried in a provider event; this is what makes
// early renewal lossless and stale renewal events harmless.
//
// Returns nil (no record) when the plot has no active rental at now; the
// caller maps that to conflict_plot_not_active.
func (r *PlotRepository) ExtendActive(ctx context.Context, id int, term types.RentalTerm, duration time.Duration, now time.Time) (*types.PlotRecord, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE plots
		 SET rental_end_date = rental_end_date + $1,
		     rental_term = $2,
		     updated_at = NOW()
		 WHERE id = $3
		   AND rental_end_date > $4
		 RETURNING id, sold_to, user_email, rental_term, sold_at, rental_end_date, updated_at`,
		duration, term, id, now,
	)

	rec, err := scanPlot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to extend plot rental", err)
	}
	return rec, nil
}

// RemoveExpired deletes every record whose end date is before now and
// returns the freed plot ids. Safe to run at any cadence: a record removed
// by an overlapping sweep is simply absent here.
func (r *PlotRepository) RemoveExpired(ctx context.Context, now time.Time) ([]int, error) {
	rows, err := r.db.Query(ctx,
		`DELETE FROM plots WHERE rental_end_date < $1 RETURNING id`,
		now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to sweep expired plots", err)
	}
	defer rows.Close()

	var removed []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan swept plot id", err)
		}
		removed = append(removed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read swept plot ids", err)
	}
	return removed, nil
}

// Reset clears all plot records. Administrative/test operation.
func (r *PlotRepository) Reset(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM plots`); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reset plot registry", err)
	}
	return nil
}

// collectPlots drains a row set into records.
func collectPlots(rows pgx.Rows) ([]*types.PlotRecord, error) {
	var records []*types.PlotRecord
	for rows.Next() {
		rec, err := scanPlot(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan plot row", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed reading plot rows", err)
	}
	return records, nil
}

var _ types.PlotRegistry = (*PlotRepository)(nil)
