// Package store defines the transactional unit checkout, payment initiation
// and settlement run in, and its PostgreSQL implementation.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Druid-alpha/shoplux-BE/internal/cart"
	"github.com/Druid-alpha/shoplux-BE/internal/catalog"
	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/orders"
	"github.com/Druid-alpha/shoplux-BE/internal/outbox"
)

// Tx is the set of reads and writes available inside one transaction.
type Tx interface {
	CartItems(ctx context.Context, userID string) ([]domain.CartItem, error)
	ClearCart(ctx context.Context, userID string) error

	Product(ctx context.Context, id string) (*domain.Product, error)
	// DecrementStock takes qty units from the counter sel resolves to or
	// fails with ErrInsufficientStock, ErrProductNotFound or
	// ErrVariantNotFound without changing anything.
	DecrementStock(ctx context.Context, productID string, sel domain.VariantSelector, qty int) error

	CreateOrder(ctx context.Context, order *domain.Order) error
	// Order and OrderByPaymentRef lock the row until the transaction ends.
	Order(ctx context.Context, id string) (*domain.Order, error)
	OrderByPaymentRef(ctx context.Context, ref string) (*domain.Order, error)
	SetPaymentRef(ctx context.Context, orderID, ref string) error
	SetStatus(ctx context.Context, orderID string, status domain.OrderStatus, paymentStatus domain.PaymentStatus) error
	SetInvoiceURL(ctx context.Context, orderID, url string) error

	CustomerEmail(ctx context.Context, userID string) (string, error)

	// Enqueue records an event that is relayed only if the transaction commits.
	Enqueue(ctx context.Context, event domain.OrderEvent) error
}

type Store interface {
	// Atomically runs fn in one transaction. Any error from fn, or a panic,
	// rolls back every write fn made.
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, newPgTx(sqlTx)); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx      *sql.Tx
	catalog *catalog.Repository
	carts   *cart.Repository
	orders  *orders.OrderRepository
}

func newPgTx(tx *sql.Tx) *pgTx {
	return &pgTx{
		tx:      tx,
		catalog: catalog.NewRepository(tx),
		carts:   cart.NewRepository(tx),
		orders:  orders.NewOrderRepository(tx),
	}
}

func (t *pgTx) CartItems(ctx context.Context, userID string) ([]domain.CartItem, error) {
	return t.carts.Items(ctx, userID)
}

func (t *pgTx) ClearCart(ctx context.Context, userID string) error {
	return t.carts.Clear(ctx, userID)
}

func (t *pgTx) Product(ctx context.Context, id string) (*domain.Product, error) {
	return t.catalog.Product(ctx, id)
}

func (t *pgTx) DecrementStock(ctx context.Context, productID string, sel domain.VariantSelector, qty int) error {
	return t.catalog.Decrement(ctx, productID, sel, qty)
}

func (t *pgTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	return t.orders.Create(ctx, order)
}

func (t *pgTx) Order(ctx context.Context, id string) (*domain.Order, error) {
	return t.orders.GetForUpdate(ctx, id)
}

func (t *pgTx) OrderByPaymentRef(ctx context.Context, ref string) (*domain.Order, error) {
	return t.orders.GetByPaymentRefForUpdate(ctx, ref)
}

func (t *pgTx) SetPaymentRef(ctx context.Context, orderID, ref string) error {
	return t.orders.SetPaymentRef(ctx, orderID, ref)
}

func (t *pgTx) SetStatus(ctx context.Context, orderID string, status domain.OrderStatus, paymentStatus domain.PaymentStatus) error {
	return t.orders.SetStatus(ctx, orderID, status, paymentStatus)
}

func (t *pgTx) SetInvoiceURL(ctx context.Context, orderID, url string) error {
	return t.orders.SetInvoiceURL(ctx, orderID, url)
}

func (t *pgTx) CustomerEmail(ctx context.Context, userID string) (string, error) {
	return t.orders.CustomerEmail(ctx, userID)
}

func (t *pgTx) Enqueue(ctx context.Context, event domain.OrderEvent) error {
	return outbox.Insert(ctx, t.tx, event)
}
