package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/postgres"
)

type OrderRepository struct {
	db postgres.DBTX
}

func NewOrderRepository(db postgres.DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, customer_id, total_amount, status, payment_status, payment_ref, invoice_url, created_at, updated_at`

// Create inserts the order header and its lines. Lines are never updated
// afterwards; the schema rejects UPDATE on order_items.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, total_amount, status, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, order.ID, order.CustomerID, order.TotalAmount, order.Status, order.PaymentStatus, order.CreatedAt)
	if err != nil {
		return err
	}

	for i, item := range order.Items {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, title, variant_sku, quantity, price_at_purchase)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.New().String(), order.ID, i, item.ProductID, item.Title, item.Variant, item.Quantity, item.PriceAtPurchase)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetForUpdate locks the order row until the surrounding transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

// GetByPaymentRefForUpdate locks the order correlated with a gateway
// reference. Any reference ever issued for the order resolves, not only the
// current one. Concurrent deliveries queue on the order lock and re-read the
// committed status once it is released.
func (r *OrderRepository) GetByPaymentRefForUpdate(ctx context.Context, ref string) (*domain.Order, error) {
	return r.getOne(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = (SELECT order_id FROM payment_attempts WHERE ref = $1)
		FOR UPDATE
	`, ref)
}

func (r *OrderRepository) getOne(ctx context.Context, query string, arg string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, title, variant_sku, quantity, price_at_purchase
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, order.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderLine
		if err := rows.Scan(&item.ProductID, &item.Title, &item.Variant, &item.Quantity, &item.PriceAtPurchase); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order      domain.Order
		paymentRef sql.NullString
		invoiceURL sql.NullString
	)
	err := row.Scan(&order.ID, &order.CustomerID, &order.TotalAmount, &order.Status, &order.PaymentStatus,
		&paymentRef, &invoiceURL, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	order.PaymentRef = paymentRef.String
	if invoiceURL.Valid {
		order.InvoiceURL = &invoiceURL.String
	}
	order.Items = []domain.OrderLine{}
	return &order, nil
}

// SetPaymentRef makes ref the order's current payment reference and adds it
// to the order's attempts. Only pending orders accept one. Earlier references
// stay in payment_attempts so a charge completed through them still settles.
func (r *OrderRepository) SetPaymentRef(ctx context.Context, id, ref string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET payment_ref = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, ref)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("payment reference %s already in use: %w", ref, err)
		}
		return err
	}
	if err := expectOne(result, domain.ErrOrderNotPending); err != nil {
		return err
	}

	var owner string
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO payment_attempts (ref, order_id)
		VALUES ($1, $2)
		ON CONFLICT (ref) DO UPDATE SET ref = EXCLUDED.ref
		RETURNING order_id
	`, ref, id).Scan(&owner)
	if err != nil {
		return err
	}
	if owner != id {
		return fmt.Errorf("payment reference %s already in use by order %s", ref, owner)
	}
	return nil
}

// PaymentRefs lists every reference issued for the order, newest first.
func (r *OrderRepository) PaymentRefs(ctx context.Context, orderID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ref FROM payment_attempts
		WHERE order_id = $1
		ORDER BY created_at DESC, ref
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *OrderRepository) SetStatus(ctx context.Context, id string, status domain.OrderStatus, paymentStatus domain.PaymentStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $2, payment_status = $3, updated_at = NOW()
		WHERE id = $1
	`, id, status, paymentStatus)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrOrderNotFound)
}

// AdvanceStatus applies an administrative fulfillment transition. The
// current status is part of the WHERE clause so a concurrent change makes
// this a no-op reported as ErrInvalidTransition.
func (r *OrderRepository) AdvanceStatus(ctx context.Context, id string, next domain.OrderStatus) (*domain.Order, error) {
	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanAdvanceTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, next)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, order.Status, next)
	if err != nil {
		return nil, err
	}
	if err := expectOne(result, domain.ErrInvalidTransition); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func (r *OrderRepository) SetInvoiceURL(ctx context.Context, id, url string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET invoice_url = $2, updated_at = NOW()
		WHERE id = $1
	`, id, url)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrOrderNotFound)
}

func expectOne(result sql.Result, miss error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return miss
	}
	return nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`, customerID)
}

// ListAwaitingPayment returns pending orders that were handed to the gateway
// before the cutoff and never settled.
func (r *OrderRepository) ListAwaitingPayment(ctx context.Context, before time.Time) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'pending' AND payment_ref IS NOT NULL AND updated_at < $1
		ORDER BY updated_at
	`, before)
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, title, variant_sku, quantity, price_at_purchase
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderLine
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Title, &item.Variant, &item.Quantity, &item.PriceAtPurchase); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// CustomerEmail reads the address the auth service keeps for a user.
func (r *OrderRepository) CustomerEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrUserNotFound
		}
		return "", err
	}
	return email, nil
}
