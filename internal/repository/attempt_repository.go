package repository

import (
	"context"
	"time"

	"github.com/spec-kit/lead-router/internal/domain"
)

// AttemptRepository is the attempt ledger. Rows are never deleted; they are tagged invalidated.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *domain.Attempt) error
	CountLive(ctx context.Context, orderID, queueID int64) (int, error)
	InvalidateLive(ctx context.Context, orderID, queueID int64, at time.Time) (int64, error)
	ListByOrder(ctx context.Context, orderID int64) ([]domain.Attempt, error)
}

type attemptRepository struct {
	db DBTX
}

// NewAttemptRepository instantiates the repository.
func NewAttemptRepository(db DBTX) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) Create(ctx context.Context, attempt *domain.Attempt) error {
	if attempt.State == "" {
		attempt.State = domain.AttemptStateLive
	}
	const query = `
        INSERT INTO attempts (order_id, queue_id, operator_id, is_first_attempt_in_queue, state)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		attempt.OrderID,
		attempt.QueueID,
		attempt.OperatorID,
		attempt.IsFirstAttemptInQueue,
		attempt.State,
	).Scan(&attempt.ID, &attempt.CreatedAt)
}

func (r *attemptRepository) CountLive(ctx context.Context, orderID, queueID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE order_id=$1 AND queue_id=$2 AND state='live'`,
		orderID, queueID,
	).Scan(&count)
	return count, err
}

func (r *attemptRepository) InvalidateLive(ctx context.Context, orderID, queueID int64, at time.Time) (int64, error) {
	cmd, err := r.db.Exec(ctx,
		`UPDATE attempts SET state='invalidated', invalidated_at=$3
         WHERE order_id=$1 AND queue_id=$2 AND state='live'`,
		orderID, queueID, at,
	)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *attemptRepository) ListByOrder(ctx context.Context, orderID int64) ([]domain.Attempt, error) {
	const query = `
        SELECT id, order_id, queue_id, operator_id, is_first_attempt_in_queue, state, created_at, invalidated_at
        FROM attempts WHERE order_id=$1 ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Attempt
	for rows.Next() {
		var attempt domain.Attempt
		if err := rows.Scan(
			&attempt.ID,
			&attempt.OrderID,
			&attempt.QueueID,
			&attempt.OperatorID,
			&attempt.IsFirstAttemptInQueue,
			&attempt.State,
			&attempt.CreatedAt,
			&attempt.InvalidatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attempt)
	}
	return result, rows.Err()
}
