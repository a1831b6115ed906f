package db

import (
	"context"
	"time"

	"plotmarket/internal/types"
)

// DownloadRepository persists the append-only client download log.
type DownloadRepository struct {
	db DBTX
}

// NewDownloadRepository creates a new DownloadRepository.
func NewDownloadRepository(db DBTX) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// Insert appends one download record.
func (r *DownloadRepository) Insert(ctx context.Context, rec *types.DownloadRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO downloads (user_agent, ip, created_at) VALUES ($1, $2, $3)`,
		rec.UserAgent, rec.IP, rec.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record download", err)
	}
	return nil
}

// CountTotal returns the all-time download count.
func (r *DownloadRepository) CountTotal(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM downloads`).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count downloads", err)
	}
	return n, nil
}

// CountSince returns the number of downloads recorded at or after the cutoff.
func (r *DownloadRepository) CountSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM downloads WHERE created_at >= $1`,
		cutoff,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count recent downloads", err)
	}
	return n, nil
}
