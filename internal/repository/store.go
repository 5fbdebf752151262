package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so repositories run unchanged inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store groups the repositories bound to one connection or transaction.
type Store interface {
	Orders() OrderRepository
	Customers() CustomerRepository
	Details() OrderDetailRepository
	LineItems() LineItemRepository
	Queues() QueueRepository
	Triggers() TriggerRepository
	Attempts() AttemptRepository
	Operators() OperatorRepository
	Dispatches() DispatchRepository
}

// TxStore is a Store that can open a transaction-scoped Store.
type TxStore interface {
	Store
	// WithinTx runs fn in one transaction; it commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type store struct {
	orders     OrderRepository
	customers  CustomerRepository
	details    OrderDetailRepository
	lineItems  LineItemRepository
	queues     QueueRepository
	triggers   TriggerRepository
	attempts   AttemptRepository
	operators  OperatorRepository
	dispatches DispatchRepository
}

func newStore(db DBTX) *store {
	return &store{
		orders:     NewOrderRepository(db),
		customers:  NewCustomerRepository(db),
		details:    NewOrderDetailRepository(db),
		lineItems:  NewLineItemRepository(db),
		queues:     NewQueueRepository(db),
		triggers:   NewTriggerRepository(db),
		attempts:   NewAttemptRepository(db),
		operators:  NewOperatorRepository(db),
		dispatches: NewDispatchRepository(db),
	}
}

func (s *store) Orders() OrderRepository { return s.orders }
func (s *store) Customers() CustomerRepository { return s.customers }
func (s *store) Details() OrderDetailRepository { return s.details }
func (s *store) LineItems() LineItemRepository { return s.lineItems }
func (s *store) Queues() QueueRepository { return s.queues }
func (s *store) Triggers() TriggerRepository { return s.triggers }
func (s *store) Attempts() AttemptRepository { return s.attempts }
func (s *store) Operators() OperatorRepository { return s.operators }
func (s *store) Dispatches() DispatchRepository { return s.dispatches }

// PostgresStore is the pgx-backed TxStore.
type PostgresStore struct {
	*store
	pool *pgxpool.Pool
}

// NewPostgresStore binds repositories to the pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{store: newStore(pool), pool: pool}
}

// WithinTx runs fn inside a pgx transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newStore(tx))
	})
}
