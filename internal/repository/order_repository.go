package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/lead-router/internal/domain"
)

// OrderFilter captures supervisor listing parameters.
type OrderFilter struct {
	Statuses    []domain.OrderStatus
	QueueID     *int64
	OperatorID  *int64
	LeadWebID   *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// OrderRepository encapsulates order persistence.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	Update(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Order, error)
	ListWithFilter(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
	UpdateQueue(ctx context.Context, id int64, queueID *int64) error
	UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error
	UpdateLease(ctx context.Context, id int64, operatorID *int64, blockedUntil *time.Time) error
	// TransitionStatus moves the order from one status to another only if it is still in from.
	TransitionStatus(ctx context.Context, id int64, from, to domain.OrderStatus, erpOrderID *string) (bool, error)
	// ClaimNext atomically selects the best eligible order for op and grants it a lease until the given time.
	ClaimNext(ctx context.Context, op *domain.Operator, now, until time.Time) (*domain.Order, error)
}

const orderColumns = `id, status, reject_reason, current_queue_id, current_operator_id, blocked_until,
               lead_web_id, lead_site, campaign_id, lead_partner_id, foreign_id, lead_product_id,
               total_price, lead_price, lead_revenue, erp_order_id, created_at, updated_at`

type orderRepository struct {
	db DBTX
}

// NewOrderRepository instantiates repository.
func NewOrderRepository(db DBTX) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	const query = `
        INSERT INTO orders (status, reject_reason, current_queue_id, current_operator_id, blocked_until,
            lead_web_id, lead_site, campaign_id, lead_partner_id, foreign_id, lead_product_id,
            total_price, lead_price, lead_revenue)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		order.Status,
		order.RejectReason,
		order.CurrentQueueID,
		order.CurrentOperatorID,
		order.BlockedUntil,
		order.LeadWebID,
		order.LeadSite,
		order.CampaignID,
		order.LeadPartnerID,
		order.ForeignID,
		order.LeadProductID,
		order.TotalPrice,
		order.LeadPrice,
		order.LeadRevenue,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	const query = `
        UPDATE orders SET status=$1, reject_reason=$2, current_queue_id=$3, current_operator_id=$4,
            blocked_until=$5, lead_web_id=$6, lead_site=$7, campaign_id=$8, lead_partner_id=$9,
            foreign_id=$10, lead_product_id=$11, total_price=$12, lead_price=$13, lead_revenue=$14,
            updated_at=NOW()
        WHERE id=$15
        RETURNING updated_at`
	return r.db.QueryRow(ctx, query,
		order.Status,
		order.RejectReason,
		order.CurrentQueueID,
		order.CurrentOperatorID,
		order.BlockedUntil,
		order.LeadWebID,
		order.LeadSite,
		order.CampaignID,
		order.LeadPartnerID,
		order.ForeignID,
		order.LeadProductID,
		order.TotalPrice,
		order.LeadPrice,
		order.LeadRevenue,
		order.ID,
	).Scan(&order.UpdatedAt)
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	return scanOrder(r.db.QueryRow(ctx, query, id))
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1 FOR UPDATE`
	return scanOrder(r.db.QueryRow(ctx, query, id))
}

func (r *orderRepository) ListWithFilter(ctx context.Context, filter OrderFilter) ([]domain.Order, error) {
	base := `SELECT ` + orderColumns + ` FROM orders`
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, int16(status))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.QueueID != nil {
		args = append(args, *filter.QueueID)
		clauses = append(clauses, fmt.Sprintf("current_queue_id=$%d", len(args)))
	}
	if filter.OperatorID != nil {
		args = append(args, *filter.OperatorID)
		clauses = append(clauses, fmt.Sprintf("current_operator_id=$%d", len(args)))
	}
	if filter.LeadWebID != nil {
		args = append(args, strings.TrimSpace(*filter.LeadWebID))
		clauses = append(clauses, fmt.Sprintf("lead_web_id=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *order)
	}
	return result, rows.Err()
}

func (r *orderRepository) UpdateQueue(ctx context.Context, id int64, queueID *int64) error {
	return r.execOne(ctx, `UPDATE orders SET current_queue_id=$1, updated_at=NOW() WHERE id=$2`, queueID, id)
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	return r.execOne(ctx, `UPDATE orders SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
}

func (r *orderRepository) UpdateLease(ctx context.Context, id int64, operatorID *int64, blockedUntil *time.Time) error {
	return r.execOne(ctx,
		`UPDATE orders SET current_operator_id=$1, blocked_until=$2, updated_at=NOW() WHERE id=$3`,
		operatorID, blockedUntil, id)
}

func (r *orderRepository) TransitionStatus(ctx context.Context, id int64, from, to domain.OrderStatus, erpOrderID *string) (bool, error) {
	const query = `
        UPDATE orders SET status=$1, erp_order_id=COALESCE($2, erp_order_id), updated_at=NOW()
        WHERE id=$3 AND status=$4`
	cmd, err := r.db.Exec(ctx, query, to, erpOrderID, id, from)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *orderRepository) ClaimNext(ctx context.Context, op *domain.Operator, now, until time.Time) (*domain.Order, error) {
	const query = `
        WITH candidate AS (
            SELECT o.id
            FROM orders o
            JOIN queues q ON q.id = o.current_queue_id
            JOIN operator_queues oq ON oq.queue_id = o.current_queue_id AND oq.operator_id = $1
            JOIN operator_web_ids ow ON ow.web_id = o.lead_web_id AND ow.operator_id = $1
            WHERE EXISTS (
                SELECT 1 FROM order_items i
                JOIN operator_products op ON op.product_id = i.product_id AND op.operator_id = $1
                WHERE i.order_id = o.id
            )
            AND (
                o.current_operator_id = $1
                OR (o.status = ANY($2) AND (o.blocked_until IS NULL OR o.blocked_until <= $3))
            )
            ORDER BY q.priority DESC, o.created_at ASC, o.id ASC
            LIMIT 1
            FOR UPDATE OF o SKIP LOCKED
        )
        UPDATE orders o
        SET current_operator_id = $1, blocked_until = $4, updated_at = NOW()
        FROM candidate
        WHERE o.id = candidate.id
        RETURNING o.id, o.status, o.reject_reason, o.current_queue_id, o.current_operator_id, o.blocked_until,
               o.lead_web_id, o.lead_site, o.campaign_id, o.lead_partner_id, o.foreign_id, o.lead_product_id,
               o.total_price, o.lead_price, o.lead_revenue, o.erp_order_id, o.created_at, o.updated_at`

	order, err := scanOrder(r.db.QueryRow(ctx, query, op.ID, callableStatusCodes(), now, until))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func callableStatusCodes() []int16 {
	var codes []int16
	for _, status := range domain.AllOrderStatuses() {
		if status.IsCallable() {
			codes = append(codes, int16(status))
		}
	}
	return codes
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var order domain.Order
	if err := row.Scan(
		&order.ID,
		&order.Status,
		&order.RejectReason,
		&order.CurrentQueueID,
		&order.CurrentOperatorID,
		&order.BlockedUntil,
		&order.LeadWebID,
		&order.LeadSite,
		&order.CampaignID,
		&order.LeadPartnerID,
		&order.ForeignID,
		&order.LeadProductID,
		&order.TotalPrice,
		&order.LeadPrice,
		&order.LeadRevenue,
		&order.ERPOrderID,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &order, nil
}
