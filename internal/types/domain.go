// Package types defines the domain model, error taxonomy, and shared
// contracts for the PlotMarket rental marketplace. It has no dependencies on
// other internal packages so every layer can import it freely.
package types

import "time"

// PlotRecord is the authoritative rental state for a single plot. A record
// exists only while a rental is on file; a plot with no record has never been
// sold or has been swept after expiry.
//
// Whether a plot is "sold" is a derived fact: the record is active iff the
// evaluation time is strictly before RentalEndDate. Callers must never trust
// a stored boolean over the clock, because time advances independently of
// writes.
type PlotRecord struct {
	ID            int        `json:"id"`
	SoldTo        string     `json:"sold_to"`
	UserEmail     string     `json:"user_email"`
	RentalTerm    RentalTerm `json:"rental_term"`
	SoldAt        time.Time  `json:"sold_at"`
	RentalEndDate time.Time  `json:"rental_end_date"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ActiveAt reports whether the rental is active at the given instant.
// The comparison is strict: a plot whose end date equals now is expired.
func (p *PlotRecord) ActiveAt(now time.Time) bool {
	return now.Before(p.RentalEndDate)
}

// PurchaseIntent is a provider-agnostic description of a pending purchase,
// created by the checkout orchestrator before any payment confirmation. The
// intent's fields are recorded as durable session metadata so the eventual
// webhook can reconstruct the full purchase without re-querying the registry.
//
// Creating an intent is speculative and never mutates the plot registry.
type PurchaseIntent struct {
	IntentID      string     `json:"intent_id"`
	PlotID        int        `json:"plot_id"`
	PlotName      string     `json:"plot_name"`
	Term          RentalTerm `json:"term"`
	BaseRateCents int64      `json:"base_rate_cents"`
	AmountCents   int64      `json:"amount_cents"`
	Email         string     `json:"email"`
	Owner         string     `json:"owner"`
	IsRenewal     bool       `json:"is_renewal"`
	PriorEndDate  *time.Time `json:"prior_end_date,omitempty"`
}

// CheckoutSession is the result of a successful intent: an opaque provider
// session identifier plus the redirect target for the buyer.
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// ConfirmedPurchase is the durable metadata recovered from a confirmed
// payment event. It is the only input the reconciler trusts when mutating
// the registry; live session fields outside the recorded metadata are
// ignored.
type ConfirmedPurchase struct {
	EventID   string
	PlotID    int
	Term      RentalTerm
	Owner     string
	Email     string
	IsRenewal bool
	// OccurredAt is the provider-reported event creation time, used as the
	// "now" for new rentals so replays across processes are deterministic.
	OccurredAt time.Time
}

// DownloadRecord is one entry in the append-only download/usage log.
// This is collaborator data, outside the rental core.
type DownloadRecord struct {
	ID        int64     `json:"id"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"created_at"`
}

// DownloadStats carries the derived counters for the download log.
type DownloadStats struct {
	Total     int64 `json:"total"`
	Last24h   int64 `json:"last_24h"`
	Last7Days int64 `json:"last_7_days"`
}
