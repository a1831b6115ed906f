package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"plotmarket/internal/core"
	"plotmarket/internal/reconcile"
	"plotmarket/internal/types"
)

// maxWebhookBodySize caps provider webhook payloads (64 KB). Real payloads
// are far smaller; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// EventProcessor applies one verified webhook delivery. Implemented by
// reconcile.Reconciler.
type EventProcessor interface {
	Process(ctx context.Context, payload []byte, sigHeader string) (reconcile.Outcome, error)
}

// WebhookHandler receives asynchronous events from the payment provider.
// The route is mounted outside the authenticated API surface; the payload
// signature is the authentication.
type WebhookHandler struct {
	processor EventProcessor
	logger    *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(processor EventProcessor, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{processor: processor, logger: logger}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes one webhook delivery.
//
// Status codes are chosen around the provider's retry behavior:
//   - 401 for missing or failed signatures; retrying an unsigned payload
//     cannot succeed.
//   - 200 for everything the retry cannot improve: applied events,
//     duplicates, business rejections, and unusable payloads.
//   - 5xx for persistence failures, so the provider redelivers. The dedup
//     ledger makes the redelivery safe.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSignatureInvalid,
			"missing Stripe-Signature header",
			nil,
		))
		return
	}

	outcome, err := h.processor.Process(r.Context(), payload, sigHeader)
	if err != nil {
		if types.IsCode(err, types.ErrCodeAuthSignatureInvalid) {
			h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		} else {
			h.logger.ErrorContext(r.Context(), "webhook processing failed", "error", err)
		}
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"received": true,
		"outcome":  outcomeString(outcome),
	}})
}

func outcomeString(o reconcile.Outcome) string {
	switch o {
	case reconcile.OutcomeApplied:
		return "applied"
	case reconcile.OutcomeDuplicate:
		return "duplicate"
	case reconcile.OutcomeRejected:
		return "rejected"
	default:
		return "ignored"
	}
}
