// Package rental implements the plot rental lifecycle: term arithmetic,
// pricing, and the serialized mutation service over the plot registry.
//
// The engine functions in this file are pure: they operate on a PlotRecord
// plus a term and an explicit clock, with no hidden state. Persistence and
// per-plot serialization live in service.go.
package rental

import (
	"fmt"
	"time"

	"plotmarket/internal/types"
)

// Term durations are fixed calendar-day counts, not actual month lengths.
// Existing rentals were priced and extended on these exact numbers; changing
// them would silently shift every renewal boundary.
const (
	monthlyDays   = 30
	quarterlyDays = 90
	yearlyDays    = 365
)

// TermDuration returns the fixed rental duration for a term.
func TermDuration(term types.RentalTerm) (time.Duration, error) {
	switch term {
	case types.TermMonthly:
		return monthlyDays * 24 * time.Hour, nil
	case types.TermQuarterly:
		return quarterlyDays * 24 * time.Hour, nil
	case types.TermYearly:
		return yearlyDays * 24 * time.Hour, nil
	default:
		return 0, types.NewAppError(
			types.ErrCodeValidationInvalidTerm,
			fmt.Sprintf("unknown rental term %q", term),
			nil,
		)
	}
}

// termPricing captures the month multiplier and percentage discount per term.
type termPricing struct {
	months      int64
	discountPct int64
}

var pricing = map[types.RentalTerm]termPricing{
	types.TermMonthly:   {months: 1, discountPct: 0},
	types.TermQuarterly: {months: 3, discountPct: 10},
	types.TermYearly:    {months: 12, discountPct: 20},
}

// AmountCents computes the billed amount for a term against a base monthly
// rate expressed in cents:
//
//	amount = baseRate × months × (1 − discount)
//
// rounded to the cent with round-half-up on the fractional cent. The math is
// integer-only so results are exact and platform-independent.
func AmountCents(baseRateCents int64, term types.RentalTerm) (int64, error) {
	p, ok := pricing[term]
	if !ok {
		return 0, types.NewAppError(
			types.ErrCodeValidationInvalidTerm,
			fmt.Sprintf("unknown rental term %q", term),
			nil,
		)
	}
	if baseRateCents <= 0 {
		return 0, types.NewAppError(
			types.ErrCodeValidationInvalidRate,
			"base monthly rate must be positive",
			nil,
		)
	}

	// baseRate × months × (100 − discountPct), then divide by 100 with
	// half-up rounding: the +50 carries a fractional half-cent upward.
	gross := baseRateCents * p.months * (100 - p.discountPct)
	return (gross + 50) / 100, nil
}

// NewRental constructs the record for a first sale. The record is fully
// populated in one step: id, owner, email, term, and both dates are set
// together, so a partially constructed record can never be observed.
//
// The caller is responsible for having verified that the plot is not
// currently active; this function only performs the arithmetic.
func NewRental(id int, owner, email string, term types.RentalTerm, now time.Time) (*types.PlotRecord, error) {
	d, err := TermDuration(term)
	if err != nil {
		return nil, err
	}
	return &types.PlotRecord{
		ID:            id,
		SoldTo:        owner,
		UserEmail:     email,
		RentalTerm:    term,
		SoldAt:        now.UTC(),
		RentalEndDate: now.UTC().Add(d),
	}, nil
}

// RenewedRental extends an existing rental by the term's duration.
//
// Extension is always relative to the current recorded end date, never to
// now: renewing early does not cost the renter unused days, and a renewal
// can never shorten the rental (the end date is monotonically non-decreasing
// across renewals).
//
// A record whose end date is at or before now is already logically expired;
// renewal fails with conflict_plot_not_active and the plot must go through a
// fresh sale instead.
func RenewedRental(existing *types.PlotRecord, term types.RentalTerm, now time.Time) (*types.PlotRecord, error) {
	if existing == nil || !existing.ActiveAt(now) {
		return nil, types.NewAppError(
			types.ErrCodeConflictPlotNotActive,
			"plot rental is not active; expired plots must be repurchased",
			nil,
		)
	}

	d, err := TermDuration(term)
	if err != nil {
		return nil, err
	}

	renewed := *existing
	renewed.RentalTerm = term
	renewed.RentalEndDate = existing.RentalEndDate.Add(d)
	return &renewed, nil
}
