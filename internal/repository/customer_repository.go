package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spec-kit/lead-router/internal/domain"
)

// CustomerRepository persists the buyer record attached to an order.
type CustomerRepository interface {
	Upsert(ctx context.Context, customer *domain.Customer) error
	GetByOrderID(ctx context.Context, orderID int64) (*domain.Customer, error)
}

type customerRepository struct {
	db DBTX
}

// NewCustomerRepository instantiates the repository.
func NewCustomerRepository(db DBTX) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) Upsert(ctx context.Context, customer *domain.Customer) error {
	const query = `
        INSERT INTO customers (order_id, name, phone, email, extra_phones)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (order_id) DO UPDATE
        SET name=EXCLUDED.name, phone=EXCLUDED.phone, email=EXCLUDED.email,
            extra_phones=EXCLUDED.extra_phones, updated_at=NOW()
        RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		customer.OrderID,
		customer.Name,
		customer.Phone,
		customer.Email,
		customer.ExtraPhones,
	).Scan(&customer.CreatedAt, &customer.UpdatedAt)
}

func (r *customerRepository) GetByOrderID(ctx context.Context, orderID int64) (*domain.Customer, error) {
	const query = `
        SELECT order_id, name, phone, email, extra_phones, created_at, updated_at
        FROM customers WHERE order_id=$1`
	var customer domain.Customer
	if err := r.db.QueryRow(ctx, query, orderID).Scan(
		&customer.OrderID,
		&customer.Name,
		&customer.Phone,
		&customer.Email,
		&customer.ExtraPhones,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &customer, nil
}

// OrderDetailRepository persists delivery information attached to an order.
type OrderDetailRepository interface {
	Upsert(ctx context.Context, detail *domain.OrderDetail) error
	GetByOrderID(ctx context.Context, orderID int64) (*domain.OrderDetail, error)
}

type orderDetailRepository struct {
	db DBTX
}

// NewOrderDetailRepository instantiates the repository.
func NewOrderDetailRepository(db DBTX) OrderDetailRepository {
	return &orderDetailRepository{db: db}
}

func (r *orderDetailRepository) Upsert(ctx context.Context, detail *domain.OrderDetail) error {
	addressInfo, err := json.Marshal(detail.AddressInfo)
	if err != nil {
		return fmt.Errorf("marshal address info: %w", err)
	}
	const query = `
        INSERT INTO order_details (order_id, address_by_client, address_info, comment)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (order_id) DO UPDATE
        SET address_by_client=EXCLUDED.address_by_client, address_info=EXCLUDED.address_info,
            comment=EXCLUDED.comment, updated_at=NOW()
        RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		detail.OrderID,
		detail.AddressByClient,
		addressInfo,
		detail.Comment,
	).Scan(&detail.CreatedAt, &detail.UpdatedAt)
}

func (r *orderDetailRepository) GetByOrderID(ctx context.Context, orderID int64) (*domain.OrderDetail, error) {
	const query = `
        SELECT order_id, address_by_client, address_info, comment, created_at, updated_at
        FROM order_details WHERE order_id=$1`
	var (
		detail      domain.OrderDetail
		addressInfo []byte
	)
	if err := r.db.QueryRow(ctx, query, orderID).Scan(
		&detail.OrderID,
		&detail.AddressByClient,
		&addressInfo,
		&detail.Comment,
		&detail.CreatedAt,
		&detail.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(addressInfo) > 0 {
		if err := json.Unmarshal(addressInfo, &detail.AddressInfo); err != nil {
			return nil, fmt.Errorf("decode address info for order %d: %w", orderID, err)
		}
	}
	return &detail, nil
}
