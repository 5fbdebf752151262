package repository

import (
	"context"

	"github.com/spec-kit/lead-router/internal/domain"
)

// LineItemRepository persists order line items.
type LineItemRepository interface {
	DeleteByOrder(ctx context.Context, orderID int64) error
	Insert(ctx context.Context, item *domain.LineItem) error
	CountByOrder(ctx context.Context, orderID int64) (int, error)
	ListByOrder(ctx context.Context, orderID int64) ([]domain.LineItem, error)
}

type lineItemRepository struct {
	db DBTX
}

// NewLineItemRepository instantiates the repository.
func NewLineItemRepository(db DBTX) LineItemRepository {
	return &lineItemRepository{db: db}
}

func (r *lineItemRepository) DeleteByOrder(ctx context.Context, orderID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, orderID)
	return err
}

func (r *lineItemRepository) Insert(ctx context.Context, item *domain.LineItem) error {
	const query = `
        INSERT INTO order_items (order_id, product_id, product_type, quantity, price_for_one, total_price)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		item.OrderID,
		item.ProductID,
		item.ProductType,
		item.Quantity,
		item.PriceForOne,
		item.TotalPrice,
	).Scan(&item.ID, &item.CreatedAt)
}

func (r *lineItemRepository) CountByOrder(ctx context.Context, orderID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM order_items WHERE order_id=$1`, orderID).Scan(&count)
	return count, err
}

func (r *lineItemRepository) ListByOrder(ctx context.Context, orderID int64) ([]domain.LineItem, error) {
	const query = `
        SELECT id, order_id, product_id, product_type, quantity, price_for_one, total_price, created_at
        FROM order_items WHERE order_id=$1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LineItem
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductType,
			&item.Quantity,
			&item.PriceForOne,
			&item.TotalPrice,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}
