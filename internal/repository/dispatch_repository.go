package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/lead-router/internal/domain"
)

// DispatchRepository is the ERP dispatch outbox.
type DispatchRepository interface {
	// Enqueue records that orderID needs dispatching. When an open job already exists it is returned with created=false.
	Enqueue(ctx context.Context, orderID int64, runAt time.Time) (job *domain.DispatchJob, created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DispatchJob, error)
	// ClaimDue moves due pending jobs, and enqueued or processing jobs idle longer than lockTimeout, to enqueued.
	// The returned jobs carry the claim time in UpdatedAt.
	ClaimDue(ctx context.Context, now time.Time, lockTimeout time.Duration, limit int) ([]domain.DispatchJob, error)
	// MarkProcessing claims a pending or enqueued job for delivery; it returns nil when the job is not claimable.
	MarkProcessing(ctx context.Context, id uuid.UUID) (*domain.DispatchJob, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, externalID string) error
	MarkRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
}

const dispatchColumns = `id, order_id, status, attempts, run_at, last_error, external_id, created_at, updated_at`

type dispatchRepository struct {
	db DBTX
}

// NewDispatchRepository instantiates the repository.
func NewDispatchRepository(db DBTX) DispatchRepository {
	return &dispatchRepository{db: db}
}

func (r *dispatchRepository) Enqueue(ctx context.Context, orderID int64, runAt time.Time) (*domain.DispatchJob, bool, error) {
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	query := `
        INSERT INTO dispatch_outbox (id, order_id, status, run_at)
        VALUES ($1, $2, 'pending', $3)
        ON CONFLICT (order_id) WHERE status IN ('pending', 'enqueued', 'processing') DO NOTHING
        RETURNING ` + dispatchColumns
	job, err := scanDispatchJob(r.db.QueryRow(ctx, query, uuid.New(), orderID, runAt))
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	existing, err := scanDispatchJob(r.db.QueryRow(ctx,
		`SELECT `+dispatchColumns+` FROM dispatch_outbox
         WHERE order_id=$1 AND status IN ('pending', 'enqueued', 'processing')`, orderID))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *dispatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DispatchJob, error) {
	return scanDispatchJob(r.db.QueryRow(ctx, `SELECT `+dispatchColumns+` FROM dispatch_outbox WHERE id=$1`, id))
}

func (r *dispatchRepository) ClaimDue(ctx context.Context, now time.Time, lockTimeout time.Duration, limit int) ([]domain.DispatchJob, error) {
	if limit < 1 {
		limit = 50
	}
	query := `
        WITH cte AS (
            SELECT id
            FROM dispatch_outbox
            WHERE (status = 'pending' AND run_at <= $1)
               OR (status IN ('enqueued', 'processing') AND updated_at <= $2)
            ORDER BY run_at ASC
            LIMIT $3
            FOR UPDATE SKIP LOCKED
        )
        UPDATE dispatch_outbox d
        SET status = 'enqueued', updated_at = NOW()
        FROM cte
        WHERE d.id = cte.id
        RETURNING d.id, d.order_id, d.status, d.attempts, d.run_at, d.last_error, d.external_id, d.created_at, d.updated_at`
	rows, err := r.db.Query(ctx, query, now, now.Add(-lockTimeout), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DispatchJob
	for rows.Next() {
		job, err := scanDispatchJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *job)
	}
	return result, rows.Err()
}

func (r *dispatchRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (*domain.DispatchJob, error) {
	query := `
        UPDATE dispatch_outbox
        SET status = 'processing', attempts = attempts + 1, updated_at = NOW()
        WHERE id = $1 AND status IN ('pending', 'enqueued')
        RETURNING ` + dispatchColumns
	job, err := scanDispatchJob(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (r *dispatchRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, externalID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE dispatch_outbox
         SET status = 'succeeded', external_id = $2, last_error = NULL, updated_at = NOW()
         WHERE id = $1`,
		id, externalID,
	)
	return err
}

func (r *dispatchRepository) MarkRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE dispatch_outbox
         SET status = 'pending', run_at = $2, last_error = $3, updated_at = NOW()
         WHERE id = $1`,
		id, runAt, lastError,
	)
	return err
}

func (r *dispatchRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE dispatch_outbox
         SET status = 'failed', last_error = $2, updated_at = NOW()
         WHERE id = $1`,
		id, lastError,
	)
	return err
}

func (r *dispatchRepository) MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE dispatch_outbox
         SET status = 'skipped', last_error = $2, updated_at = NOW()
         WHERE id = $1`,
		id, reason,
	)
	return err
}

func (r *dispatchRepository) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE dispatch_outbox
         SET status = 'pending', last_error = $2, updated_at = NOW()
         WHERE id = $1`,
		id, lastError,
	)
	return err
}

func scanDispatchJob(row pgx.Row) (*domain.DispatchJob, error) {
	var job domain.DispatchJob
	if err := row.Scan(
		&job.ID,
		&job.OrderID,
		&job.Status,
		&job.Attempts,
		&job.RunAt,
		&job.LastError,
		&job.ExternalID,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}
