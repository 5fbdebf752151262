package repository

import (
	"context"

	"github.com/spec-kit/lead-router/internal/domain"
)

// QueueRepository reads routing queues. Queues are administered elsewhere.
type QueueRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Queue, error)
}

type queueRepository struct {
	db DBTX
}

// NewQueueRepository instantiates the repository.
func NewQueueRepository(db DBTX) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) GetByID(ctx context.Context, id int64) (*domain.Queue, error) {
	const query = `
        SELECT id, name, priority, max_attempts, retry_interval_minutes, created_at, updated_at
        FROM queues WHERE id=$1`
	var queue domain.Queue
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&queue.ID,
		&queue.Name,
		&queue.Priority,
		&queue.MaxAttempts,
		&queue.RetryIntervalMinutes,
		&queue.CreatedAt,
		&queue.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &queue, nil
}
