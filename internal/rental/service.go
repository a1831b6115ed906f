package rental

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"plotmarket/internal/db"
	"plotmarket/internal/types"
)

var (
	plotsSoldTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plotmarket_plots_sold_total",
		Help: "Number of first-sale rentals created, by term.",
	}, []string{"term"})

	plotsRenewedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plotmarket_plots_renewed_total",
		Help: "Number of rental renewals applied, by term.",
	}, []string{"term"})

	purchasesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plotmarket_purchases_rejected_total",
		Help: "Confirmed purchases rejected by registry state, by reason.",
	}, []string{"reason"})
)

// TxBeginner starts database transactions. Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Registry is the storage surface the service mutates through. It extends the
// read-side PlotRegistry with the two guarded write primitives; the
// production implementation is db.PlotRepository.
type Registry interface {
	types.PlotRegistry

	// CreateIfInactive inserts the record unless the plot is active at now.
	// Returns false when the plot is currently active.
	CreateIfInactive(ctx context.Context, rec *types.PlotRecord, now time.Time) (bool, error)

	// ExtendActive extends an active rental from its stored end date.
	// Returns nil when no rental is active at now.
	ExtendActive(ctx context.Context, id int, term types.RentalTerm, duration time.Duration, now time.Time) (*types.PlotRecord, error)
}

// Service owns every mutation of the plot registry. All writes funnel through
// it so the no-double-sale and extend-from-stored-end rules are enforced in
// exactly one place, regardless of whether the caller is the webhook
// reconciler, an admin endpoint, or the expiry sweeper.
type Service struct {
	pool   TxBeginner
	plots  Registry
	logger *slog.Logger
}

// NewService creates the rental service. The registry handles plain reads and
// single-statement writes; the pool is used where a write must be atomic with
// the event dedup ledger.
func NewService(pool TxBeginner, plots Registry, logger *slog.Logger) *Service {
	return &Service{
		pool:   pool,
		plots:  plots,
		logger: logger,
	}
}

// Get returns the rental record for a plot, or ErrCodeNotFoundPlot.
func (s *Service) Get(ctx context.Context, id int) (*types.PlotRecord, error) {
	return s.plots.Get(ctx, id)
}

// ListActive returns all rentals active at now.
func (s *Service) ListActive(ctx context.Context, now time.Time) ([]*types.PlotRecord, error) {
	return s.plots.ListActive(ctx, now)
}

// ListByOwner returns all rentals held by an owner identity.
func (s *Service) ListByOwner(ctx context.Context, owner string) ([]*types.PlotRecord, error) {
	return s.plots.ListByOwner(ctx, owner)
}

// Create records a first sale of the plot at now. Fails with
// conflict_plot_already_active when the plot already has an active rental;
// an expired, unswept record is replaced in the same statement.
func (s *Service) Create(ctx context.Context, id int, owner, email string, term types.RentalTerm, now time.Time) (*types.PlotRecord, error) {
	rec, err := NewRental(id, owner, email, term, now)
	if err != nil {
		return nil, err
	}

	created, err := s.plots.CreateIfInactive(ctx, rec, now)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, types.NewAppError(
			types.ErrCodeConflictPlotActive,
			"plot already has an active rental",
			nil,
		)
	}

	plotsSoldTotal.WithLabelValues(string(term)).Inc()
	s.logger.Info("plot sold",
		"plot_id", id,
		"term", term,
		"rental_end_date", rec.RentalEndDate,
	)
	return rec, nil
}

// Renew extends the plot's active rental by the term's duration, measured
// from the stored end date. Fails with conflict_plot_not_active when no
// rental is active at now.
func (s *Service) Renew(ctx context.Context, id int, term types.RentalTerm, now time.Time) (*types.PlotRecord, error) {
	d, err := TermDuration(term)
	if err != nil {
		return nil, err
	}

	rec, err := s.plots.ExtendActive(ctx, id, term, d, now)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, types.NewAppError(
			types.ErrCodeConflictPlotNotActive,
			"plot rental is not active; expired plots must be repurchased",
			nil,
		)
	}

	plotsRenewedTotal.WithLabelValues(string(term)).Inc()
	s.logger.Info("plot renewed",
		"plot_id", id,
		"term", term,
		"rental_end_date", rec.RentalEndDate,
	)
	return rec, nil
}

// ApplyOutcome classifies the result of applying a confirmed purchase.
type ApplyOutcome int

const (
	// OutcomeApplied means the registry was mutated by this delivery.
	OutcomeApplied ApplyOutcome = iota
	// OutcomeDuplicate means the event id was already processed; nothing
	// changed.
	OutcomeDuplicate
	// OutcomeRejected means the event was new but the registry state made
	// the mutation invalid. The event is recorded as processed so retries
	// do not re-attempt it.
	OutcomeRejected
)

// ApplyResult reports what a confirmed purchase did to the registry.
type ApplyResult struct {
	Outcome ApplyOutcome
	Record  *types.PlotRecord
	// RejectCode is set when Outcome is OutcomeRejected.
	RejectCode types.ErrorCode
}

// ApplyConfirmed applies a confirmed purchase event to the registry, exactly
// once. The dedup-ledger insert and the registry mutation run in a single
// transaction: a crash between them cannot strand a claimed-but-unapplied
// event, and an infrastructure failure rolls back the claim so the provider's
// retry gets a clean attempt.
//
// The purchase's recorded metadata is the only trusted input. OccurredAt (the
// provider event creation time) is the clock for the activity guard and the
// new record's dates, so a replayed delivery computes the same result in any
// process.
//
// Business rejections (plot already active on a first sale, not active on a
// renewal) are not errors here: the ledger row is committed and the outcome
// reports the rejection, because retrying the same event can never change
// the answer.
func (s *Service) ApplyConfirmed(ctx context.Context, cp *types.ConfirmedPurchase) (*ApplyResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	ledger := db.NewEventRepository(tx)
	first, err := ledger.MarkProcessed(ctx, cp.EventID, types.EventCheckoutCompleted)
	if err != nil {
		return nil, err
	}
	if !first {
		s.logger.Info("duplicate purchase event ignored", "event_id", cp.EventID, "plot_id", cp.PlotID)
		return &ApplyResult{Outcome: OutcomeDuplicate}, nil
	}

	plots := db.NewPlotRepository(tx)
	result, err := s.applyPurchase(ctx, plots, cp)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to commit purchase", err)
	}

	switch result.Outcome {
	case OutcomeApplied:
		if cp.IsRenewal {
			plotsRenewedTotal.WithLabelValues(string(cp.Term)).Inc()
		} else {
			plotsSoldTotal.WithLabelValues(string(cp.Term)).Inc()
		}
		s.logger.Info("purchase applied",
			"event_id", cp.EventID,
			"plot_id", cp.PlotID,
			"term", cp.Term,
			"renewal", cp.IsRenewal,
			"rental_end_date", result.Record.RentalEndDate,
		)
	case OutcomeRejected:
		purchasesRejectedTotal.WithLabelValues(string(result.RejectCode)).Inc()
		s.logger.Warn("purchase rejected by registry state",
			"event_id", cp.EventID,
			"plot_id", cp.PlotID,
			"reason", result.RejectCode,
		)
	}
	return result, nil
}

// applyPurchase performs the registry mutation inside the caller's
// transaction and classifies the result. It never commits or rolls back.
func (s *Service) applyPurchase(ctx context.Context, plots *db.PlotRepository, cp *types.ConfirmedPurchase) (*ApplyResult, error) {
	if cp.IsRenewal {
		d, err := TermDuration(cp.Term)
		if err != nil {
			return nil, err
		}
		rec, err := plots.ExtendActive(ctx, cp.PlotID, cp.Term, d, cp.OccurredAt)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return &ApplyResult{Outcome: OutcomeRejected, RejectCode: types.ErrCodeConflictPlotNotActive}, nil
		}
		return &ApplyResult{Outcome: OutcomeApplied, Record: rec}, nil
	}

	rec, err := NewRental(cp.PlotID, cp.Owner, cp.Email, cp.Term, cp.OccurredAt)
	if err != nil {
		return nil, err
	}
	created, err := plots.CreateIfInactive(ctx, rec, cp.OccurredAt)
	if err != nil {
		return nil, err
	}
	if !created {
		return &ApplyResult{Outcome: OutcomeRejected, RejectCode: types.ErrCodeConflictPlotActive}, nil
	}
	return &ApplyResult{Outcome: OutcomeApplied, Record: rec}, nil
}

// Sweep removes every expired record and returns the freed plot ids.
func (s *Service) Sweep(ctx context.Context, now time.Time) ([]int, error) {
	removed, err := s.plots.RemoveExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		s.logger.Info("expired rentals swept", "count", len(removed), "plot_ids", removed)
	}
	return removed, nil
}

// Reset clears the registry. Administrative operation behind auth.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.plots.Reset(ctx); err != nil {
		return err
	}
	s.logger.Warn("plot registry reset")
	return nil
}
