package handlers

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"plotmarket/internal/core"
	"plotmarket/internal/types"
)

// DownloadService records client downloads and serves usage counters.
// Implemented by downloads.Tracker.
type DownloadService interface {
	Record(ctx context.Context, userAgent, ip string) error
	Stats(ctx context.Context) (*types.DownloadStats, error)
}

// DownloadsHandler serves the client download tracking endpoints.
type DownloadsHandler struct {
	svc    DownloadService
	logger *slog.Logger
}

// NewDownloadsHandler creates a DownloadsHandler.
func NewDownloadsHandler(svc DownloadService, logger *slog.Logger) *DownloadsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadsHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the download endpoints.
func (h *DownloadsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/downloads", h.Record)
	r.Get("/downloads/stats", h.Stats)
}

// Record handles POST /v1/downloads, appending one download entry derived
// from the request itself. The body is unused.
func (h *DownloadsHandler) Record(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Record(r.Context(), r.UserAgent(), clientIP(r)); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: map[string]string{"status": "recorded"}})
}

// Stats handles GET /v1/downloads/stats.
func (h *DownloadsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: stats})
}

// clientIP returns the originating client address, preferring the first
// X-Forwarded-For hop when the service sits behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
