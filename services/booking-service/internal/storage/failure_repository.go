package storage

import (
	"context"

	"github.com/itaybe6/barber-English-sub002/libs/db"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/dispatch"
)

// FailureRepository persists tasks the dispatcher gave up on.
type FailureRepository struct {
	pool *db.Pool
}

func NewFailureRepository(pool *db.Pool) *FailureRepository {
	return &FailureRepository{pool: pool}
}

func (r *FailureRepository) RecordFailure(ctx context.Context, f dispatch.Failure) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dispatch_failures (task, business_id, attempts, error, failed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, f.Task, f.BusinessID, f.Attempts, f.Err, f.FailedAt)
	return err
}
