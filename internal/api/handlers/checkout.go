// Package handlers contains the HTTP handler implementations for the
// PlotMarket API. Handlers declare narrow local interfaces for their
// dependencies and translate between the wire format and the domain
// services; business rules live in the services themselves.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"plotmarket/internal/checkout"
	"plotmarket/internal/core"
	"plotmarket/internal/types"
)

// CheckoutService opens priced checkout sessions. Implemented by
// checkout.Orchestrator.
type CheckoutService interface {
	CreateSession(ctx context.Context, req *checkout.Request) (*types.CheckoutSession, error)
}

// CheckoutHandler serves the checkout intent endpoint.
type CheckoutHandler struct {
	svc    CheckoutService
	logger *slog.Logger
}

// NewCheckoutHandler creates a CheckoutHandler.
func NewCheckoutHandler(svc CheckoutService, logger *slog.Logger) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the checkout endpoints.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/checkout/sessions", h.Create)
}

// Create handles POST /v1/checkout/sessions. It validates the purchase
// request and responds with the provider redirect URL. No plot state
// changes here; ownership moves only when the payment confirmation event
// is reconciled.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	session, err := h.svc.CreateSession(r.Context(), &req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: session})
}
