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

// PlotReader is the read-only registry surface the public plot endpoints
// need. Implemented by rental.Service.
type PlotReader interface {
	Get(ctx context.Context, id int) (*types.PlotRecord, error)
	ListActive(ctx context.Context, now time.Time) ([]*types.PlotRecord, error)
	ListByOwner(ctx context.Context, owner string) ([]*types.PlotRecord, error)
}

// PlotsHandler serves the public plot status and listing endpoints.
type PlotsHandler struct {
	reader PlotReader
	cfg    config.RegistryConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewPlotsHandler creates a PlotsHandler.
func NewPlotsHandler(reader PlotReader, cfg config.RegistryConfig, logger *slog.Logger) *PlotsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlotsHandler{
		reader: reader,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterRoutes mounts the plot endpoints.
func (h *PlotsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/plots", h.ListActive)
	r.Get("/plots/{plotID}", h.Status)
	r.Get("/owners/{owner}/plots", h.ListByOwner)
}

// plotStatusResponse is the wire shape for a single plot's status. Available
// plots have no rental record to show.
type plotStatusResponse struct {
	ID        int               `json:"id"`
	Available bool              `json:"available"`
	Rental    *types.PlotRecord `json:"rental,omitempty"`
}

// Status handles GET /v1/plots/{plotID}. Availability is computed against
// the current clock, so an expired-but-unswept record reports available.
func (h *PlotsHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := h.parsePlotID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	now := h.now().UTC()

	rec, err := h.reader.Get(r.Context(), id)
	if err != nil {
		if types.IsCode(err, types.ErrCodeNotFoundPlot) {
			core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plotStatusResponse{
				ID:        id,
				Available: true,
			}})
			return
		}
		core.Error(w, r, err)
		return
	}

	resp := plotStatusResponse{
		ID:        id,
		Available: !rec.ActiveAt(now),
	}
	if rec.ActiveAt(now) {
		resp.Rental = rec
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// ListActive handles GET /v1/plots, returning every currently active rental.
func (h *PlotsHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	records, err := h.reader.ListActive(r.Context(), h.now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if records == nil {
		records = []*types.PlotRecord{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: records})
}

// ListByOwner handles GET /v1/owners/{owner}/plots.
func (h *PlotsHandler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	if owner == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"owner identity is required",
			nil,
		))
		return
	}

	records, err := h.reader.ListByOwner(r.Context(), owner)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if records == nil {
		records = []*types.PlotRecord{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: records})
}

// parsePlotID extracts and bounds-checks the plot id path parameter.
func (h *PlotsHandler) parsePlotID(r *http.Request) (int, error) {
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
