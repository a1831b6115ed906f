// Package downloads records client application downloads and serves derived
// usage counters. Separate from the rental core: losing this data affects
// reporting only.
package downloads

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"plotmarket/internal/types"
)

var downloadsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "plotmarket_downloads_recorded_total",
	Help: "Client downloads recorded.",
})

// Store is the persistence surface for download records. Implemented by
// db.DownloadRepository.
type Store interface {
	Insert(ctx context.Context, rec *types.DownloadRecord) error
	CountTotal(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// Tracker appends download records and computes usage stats.
type Tracker struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option is a functional option for configuring a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a download tracker.
func NewTracker(store Store, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends one download entry.
func (t *Tracker) Record(ctx context.Context, userAgent, ip string) error {
	rec := &types.DownloadRecord{
		UserAgent: userAgent,
		IP:        ip,
		CreatedAt: t.now().UTC(),
	}
	if err := t.store.Insert(ctx, rec); err != nil {
		return err
	}
	downloadsRecordedTotal.Inc()
	return nil
}

// Stats returns total and windowed download counters.
func (t *Tracker) Stats(ctx context.Context) (*types.DownloadStats, error) {
	now := t.now().UTC()

	total, err := t.store.CountTotal(ctx)
	if err != nil {
		return nil, err
	}
	last24h, err := t.store.CountSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	last7d, err := t.store.CountSince(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		return nil, err
	}

	return &types.DownloadStats{
		Total:     total,
		Last24h:   last24h,
		Last7Days: last7d,
	}, nil
}
