// Package reconcile consumes asynchronous payment-provider events and makes
// the plot registry agree with what the provider confirmed. Deliveries may
// arrive late, repeated, or out of order; processing is idempotent so any
// interleaving converges to the same registry state.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"plotmarket/internal/rental"
	"plotmarket/internal/types"
)

var (
	eventsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plotmarket_webhook_events_total",
		Help: "Webhook events received after signature verification, by type.",
	}, []string{"type"})

	eventsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plotmarket_webhook_duplicates_total",
		Help: "Webhook deliveries discarded as already processed.",
	})

	paymentFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plotmarket_payment_failures_total",
		Help: "Recurring payment failure events observed.",
	})
)

// seenCacheSize bounds the in-memory dedup cache. The cache is a fast path
// in front of the durable ledger, sized to comfortably hold a retry window
// of provider deliveries.
const (
	seenCacheSize = 4096
	seenCacheTTL  = 24 * time.Hour
)

// PurchaseApplier mutates the registry for a confirmed purchase, exactly
// once per event id. Implemented by rental.Service.
type PurchaseApplier interface {
	ApplyConfirmed(ctx context.Context, cp *types.ConfirmedPurchase) (*rental.ApplyResult, error)
}

// Outcome classifies what a webhook delivery did.
type Outcome int

const (
	// OutcomeApplied means the registry changed.
	OutcomeApplied Outcome = iota
	// OutcomeDuplicate means the event id was already processed.
	OutcomeDuplicate
	// OutcomeRejected means the event was new but invalid against current
	// registry state; it is recorded so retries stay no-ops.
	OutcomeRejected
	// OutcomeIgnored covers event types that carry no registry mutation and
	// payloads whose metadata cannot identify a purchase. Retrying either
	// can never produce a different result, so they are acknowledged.
	OutcomeIgnored
)

// Reconciler verifies, deduplicates, and routes provider events.
type Reconciler struct {
	verifier types.WebhookVerifier
	applier  PurchaseApplier
	secret   string
	// seen short-circuits redeliveries of recently processed event ids
	// without a database round trip. The durable ledger remains the
	// authority; a cache miss just falls through to it.
	seen   *expirable.LRU[string, struct{}]
	logger *slog.Logger
}

// NewReconciler creates a reconciler using the given signature verifier and
// webhook signing secret.
func NewReconciler(verifier types.WebhookVerifier, applier PurchaseApplier, secret string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		verifier: verifier,
		applier:  applier,
		secret:   secret,
		seen:     expirable.NewLRU[string, struct{}](seenCacheSize, nil, seenCacheTTL),
		logger:   logger,
	}
}

// Process authenticates and applies one webhook delivery.
//
// A non-nil error means the delivery was not safely processed: signature
// failures surface as auth errors, and persistence failures surface so the
// transport can answer 5xx and let the provider retry (the dedup ledger
// makes the retry harmless). Everything else, including duplicates and
// business rejections, returns a nil error with the outcome, because
// redelivering those events can never change the result.
func (rc *Reconciler) Process(ctx context.Context, payload []byte, sigHeader string) (Outcome, error) {
	if err := rc.verifier.Verify(payload, sigHeader, rc.secret); err != nil {
		return OutcomeIgnored, err
	}

	var event providerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		rc.logger.WarnContext(ctx, "unparseable webhook payload", "error", err)
		return OutcomeIgnored, nil
	}

	eventsReceivedTotal.WithLabelValues(string(event.Type)).Inc()

	switch event.Type {
	case types.EventCheckoutCompleted:
		return rc.processCheckoutCompleted(ctx, &event)

	case types.EventPaymentFailed:
		// A failed recurring charge does not cut the rental short; the plot
		// stays active until its recorded end date and simply is not
		// extended. Observed for operators, no registry change.
		paymentFailuresTotal.Inc()
		rc.logger.WarnContext(ctx, "recurring payment failed",
			"event_id", event.ID,
			"plot_id", event.metadataField("plot_id"),
		)
		return OutcomeIgnored, nil

	case types.EventSubCancelled, types.EventSubUpdated:
		// Cancellation stops future renewals at the provider; the current
		// paid period runs to its end date. Nothing to reconcile.
		rc.logger.InfoContext(ctx, "subscription lifecycle event observed",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return OutcomeIgnored, nil

	default:
		rc.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return OutcomeIgnored, nil
	}
}

// processCheckoutCompleted recovers the purchase from the session metadata
// and applies it through the exactly-once path.
func (rc *Reconciler) processCheckoutCompleted(ctx context.Context, event *providerEvent) (Outcome, error) {
	if event.ID != "" && rc.seen.Contains(event.ID) {
		eventsDuplicateTotal.Inc()
		rc.logger.InfoContext(ctx, "duplicate delivery short-circuited", "event_id", event.ID)
		return OutcomeDuplicate, nil
	}

	cp, err := event.confirmedPurchase()
	if err != nil {
		// Metadata this event will carry forever; retrying cannot fix it.
		rc.logger.ErrorContext(ctx, "checkout event with unusable metadata",
			"event_id", event.ID,
			"error", err,
		)
		return OutcomeIgnored, nil
	}

	result, err := rc.applier.ApplyConfirmed(ctx, cp)
	if err != nil {
		return OutcomeIgnored, err
	}

	rc.seen.Add(event.ID, struct{}{})

	switch result.Outcome {
	case rental.OutcomeDuplicate:
		eventsDuplicateTotal.Inc()
		return OutcomeDuplicate, nil
	case rental.OutcomeRejected:
		return OutcomeRejected, nil
	default:
		return OutcomeApplied, nil
	}
}

// providerEvent is a minimal representation of a provider webhook event,
// tailored to the fields the reconciler needs. Decoupled from the stripe-go
// event types to keep parsing explicit and tests simple.
type providerEvent struct {
	ID      string                  `json:"id"`
	Type    types.ProviderEventType `json:"type"`
	Created int64                   `json:"created"`
	Data    providerEventData       `json:"data"`
}

type providerEventData struct {
	Object providerEventObject `json:"object"`
}

type providerEventObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// occurredAt returns the provider-reported event creation time.
func (e *providerEvent) occurredAt() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

// metadataField returns a metadata value, or "" when absent.
func (e *providerEvent) metadataField(key string) string {
	return e.Data.Object.Metadata[key]
}

// confirmedPurchase reconstructs the purchase from the durable session
// metadata written at checkout time. Only these recorded fields are trusted;
// the live session is never consulted.
func (e *providerEvent) confirmedPurchase() (*types.ConfirmedPurchase, error) {
	if e.ID == "" {
		return nil, fmt.Errorf("event has no id")
	}

	plotIDStr := e.metadataField("plot_id")
	if plotIDStr == "" {
		return nil, fmt.Errorf("metadata missing plot_id")
	}
	plotID, err := strconv.Atoi(plotIDStr)
	if err != nil || plotID < 1 {
		return nil, fmt.Errorf("metadata plot_id %q is not a positive integer", plotIDStr)
	}

	term := types.RentalTerm(e.metadataField("term"))
	if !term.Valid() {
		return nil, fmt.Errorf("metadata term %q is not a recognized rental term", e.metadataField("term"))
	}

	isRenewal := e.metadataField("is_renewal") == "true"

	owner := e.metadataField("owner")
	if owner == "" && !isRenewal {
		return nil, fmt.Errorf("metadata missing owner for a first sale")
	}

	return &types.ConfirmedPurchase{
		EventID:    e.ID,
		PlotID:     plotID,
		Term:       term,
		Owner:      owner,
		Email:      e.metadataField("email"),
		IsRenewal:  isRenewal,
		OccurredAt: e.occurredAt(),
	}, nil
}
