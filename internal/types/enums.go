package types

// RentalTerm is the billing cadence for a plot rental. Each term maps to a
// fixed calendar-day duration and a discount on the base monthly rate; the
// day counts are deliberately fixed (30/90/365) rather than derived from the
// actual calendar, and must not be changed without migrating existing
// rentals.
type RentalTerm string

const (
	TermMonthly   RentalTerm = "monthly"
	TermQuarterly RentalTerm = "quarterly"
	TermYearly    RentalTerm = "yearly"
)

// Valid reports whether the term is one of the recognized cadences.
func (t RentalTerm) Valid() bool {
	switch t {
	case TermMonthly, TermQuarterly, TermYearly:
		return true
	}
	return false
}

// AllTerms lists every recognized rental term. Used by validators and tests.
var AllTerms = []RentalTerm{TermMonthly, TermQuarterly, TermYearly}

// ProviderEventType identifies the kind of asynchronous payment-provider
// event consumed by the reconciler. Values match Stripe's event type strings
// so the webhook envelope can be routed without translation.
type ProviderEventType string

const (
	EventCheckoutCompleted ProviderEventType = "checkout.session.completed"
	EventPaymentFailed     ProviderEventType = "invoice.payment_failed"
	EventSubCancelled      ProviderEventType = "customer.subscription.deleted"
	EventSubUpdated        ProviderEventType = "customer.subscription.updated"
)
