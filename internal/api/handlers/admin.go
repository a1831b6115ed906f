package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"plotmarket/internal/config"
	"plotmarket/internal/core"
	"plotmarket/internal/types"
)

// AdminRentalService is the mutation surface behind the admin endpoints.
// Implemented by rental.Service.
type AdminRentalService interface {
	Create(ctx context.Context, id int, owner, email string, term types.RentalTerm, now time.Time) (*types.PlotRecord, error)
	Renew(ctx context.Context, id int, term types.RentalTerm, now time.Time) (*types.PlotRecord, error)
	Reset(ctx context.Context) error
}

// AdminHandler serves the trusted synchronous bypass path: direct sells,
// renewals, and registry reset without going through the payment provider.
// All routes sit behind the bearer-token middleware.
type AdminHandler struct {
	svc    AdminRentalService
	cfg    config.RegistryConfig
	token  types.SecretString
	logger *slog.Logger
	now    func() time.Time
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc AdminRentalService, cfg config.RegistryConfig, token types.SecretString, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		svc:    svc,
		cfg:    cfg,
		token:  token,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterRoutes mounts the admin endpoints behind token auth.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(core.AdminAuthMiddleware(h.token))
		r.Post("/admin/plots/{plotID}/sell", h.Sell)
		r.Post("/admin/plots/{plotID}/renew", h.Renew)
		r.Post("/admin/reset", h.Reset)
	})
}

type adminSellRequest struct {
	Owner string           `json:"owner"`
	Email string           `json:"email"`
	Term  types.RentalTerm `json:"term"`
}

// Sell handles POST /v1/admin/plots/{plotID}/sell, recording a rental
// directly. Same activity guard as the payment path: an active plot cannot
// be resold.
func (h *AdminHandler) Sell(w http.ResponseWriter, r *http.Request) {
	id, err := h.parsePlotID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req adminSellRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Owner == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"owner is required",
			nil,
		))
		return
	}
	if !req.Term.Valid() {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidTerm,
			fmt.Sprintf("term must be one of %v", types.AllTerms),
			nil,
		))
		return
	}

	rec, err := h.svc.Create(r.Context(), id, req.Owner, req.Email, req.Term, h.now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "admin sold plot", "plot_id", id, "term", req.Term)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: rec})
}

type adminRenewRequest struct {
	Term types.RentalTerm `json:"term"`
}

// Renew handles POST /v1/admin/plots/{plotID}/renew, extending an active
// rental from its stored end date.
func (h *AdminHandler) Renew(w http.ResponseWriter, r *http.Request) {
	id, err := h.parsePlotID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req adminRenewRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if !req.Term.Valid() {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidTerm,
			fmt.Sprintf("term must be one of %v", types.AllTerms),
			nil,
		))
		return
	}

	rec, err := h.svc.Renew(r.Context(), id, req.Term, h.now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "admin renewed plot", "plot_id", id, "term", req.Term)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: rec})
}

// Reset handles POST /v1/admin/reset, clearing every rental record.
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context()); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.WarnContext(r.Context(), "admin reset plot registry")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"status": "reset"}})
}

func (h *AdminHandler) parsePlotID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "plotID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 || id > h.cfg.MaxPlots {
		return 0, types.NewAppError(
			types.ErrCodeValidationInvalidPlot,
			fmt.Sprintf("plot id must be an integer between 1 and %d", h.cfg.MaxPlots),
			err,
		)
	}
	return id, nil
}
