package repository

import (
	"context"

	"github.com/spec-kit/lead-router/internal/domain"
)

// OperatorRepository reads operators together with their routing entitlements.
type OperatorRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Operator, error)
	GetByEmail(ctx context.Context, email string) (*domain.Operator, error)
}

const operatorSelect = `
        SELECT o.id, o.name, o.email, o.role, o.state, o.created_at, o.updated_at,
               COALESCE((SELECT array_agg(queue_id ORDER BY queue_id) FROM operator_queues WHERE operator_id = o.id), '{}'),
               COALESCE((SELECT array_agg(product_id ORDER BY product_id) FROM operator_products WHERE operator_id = o.id), '{}'),
               COALESCE((SELECT array_agg(web_id ORDER BY web_id) FROM operator_web_ids WHERE operator_id = o.id), '{}')
        FROM operators o`

type operatorRepository struct {
	db DBTX
}

// NewOperatorRepository instantiates the repository.
func NewOperatorRepository(db DBTX) OperatorRepository {
	return &operatorRepository{db: db}
}

func (r *operatorRepository) GetByID(ctx context.Context, id int64) (*domain.Operator, error) {
	return r.fetchSingle(ctx, operatorSelect+` WHERE o.id=$1`, id)
}

func (r *operatorRepository) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	return r.fetchSingle(ctx, operatorSelect+` WHERE LOWER(o.email)=LOWER($1)`, email)
}

func (r *operatorRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Operator, error) {
	var op domain.Operator
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&op.ID,
		&op.Name,
		&op.Email,
		&op.Role,
		&op.State,
		&op.CreatedAt,
		&op.UpdatedAt,
		&op.AssignedQueues,
		&op.EntitledProducts,
		&op.EntitledWebIDs,
	); err != nil {
		return nil, err
	}
	return &op, nil
}
