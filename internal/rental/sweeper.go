package rental

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var plotsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "plotmarket_plots_swept_total",
	Help: "Number of expired rental records removed by the sweeper.",
})

// Sweeper periodically removes expired rental records so freed plots become
// visible to buyers without waiting for an on-demand read. The sweep is a
// hygiene pass, not a correctness requirement: activity is always computed
// against the clock, so an unswept expired record never blocks a sale.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper running at the given interval.
func NewSweeper(svc *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		svc:      svc,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps once immediately, then on every tick until the context is
// cancelled. Sweep failures are logged and the loop keeps going; the next
// tick retries naturally.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started", "interval", s.interval)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.svc.Sweep(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}
	plotsSweptTotal.Add(float64(len(removed)))
}
