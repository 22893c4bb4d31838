// Package memstore is an in-memory implementation of the store and ledger
// interfaces. Transactions are serialized by one mutex and work on a private
// copy of the data that replaces the shared state only on success, which
// gives the same all-or-nothing behaviour as the database.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/outbox"
	"github.com/Druid-alpha/shoplux-BE/internal/store"
)

// DecrementHook runs before each stock decrement inside a transaction. A
// non-nil error aborts the decrement and is returned to the caller.
type DecrementHook func(productID string, sel domain.VariantSelector, qty int) error

type Store struct {
	mu    sync.Mutex
	data  *state
	onDec DecrementHook
}

type state struct {
	products   map[string]*domain.Product
	carts      map[string][]domain.CartItem
	orders     map[string]*domain.Order
	orderSeq   []string
	emails     map[string]string
	attempts   map[string]string
	outbox     []outbox.Record
	nextOutbox int64
}

func New() *Store {
	return &Store{
		data: &state{
			products: make(map[string]*domain.Product),
			carts:    make(map[string][]domain.CartItem),
			orders:   make(map[string]*domain.Order),
			emails:   make(map[string]string),
			attempts: make(map[string]string),
		},
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, &memTx{s: s, st: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// FailDecrement installs a hook consulted before every decrement. Pass nil
// to remove it.
func (s *Store) FailDecrement(hook DecrementHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDec = hook
}

// Seeding and inspection helpers.

func (s *Store) AddProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.products[p.ID] = cloneProduct(&p)
}

func (s *Store) SetPrice(productID string, sel domain.VariantSelector, price int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	if sku, ok := sel.SKU(); ok {
		for i := range p.Variants {
			if p.Variants[i].SKU == sku {
				p.Variants[i].Price = price
				return nil
			}
		}
		return fmt.Errorf("%w: %s", domain.ErrVariantNotFound, sku)
	}
	p.Price = price
	return nil
}

func (s *Store) AddUser(id, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.emails[id] = email
}

// Stock reads the counter sel resolves to.
func (s *Store) Stock(productID string, sel domain.VariantSelector) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.products[productID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	unit, err := domain.ResolveUnit(p, sel)
	if err != nil {
		return 0, err
	}
	return unit.Stock, nil
}

func (s *Store) Outbox() []outbox.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Record, len(s.data.outbox))
	copy(out, s.data.outbox)
	return out
}

// Product satisfies the catalog lookup used by the cart endpoints.
func (s *Store) Product(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	return cloneProduct(p), nil
}

// Order ledger reads and administrative writes.

func (s *Store) GetByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) ListByCustomer(_ context.Context, customerID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Order{}
	for i := len(s.data.orderSeq) - 1; i >= 0; i-- {
		o := s.data.orders[s.data.orderSeq[i]]
		if o.CustomerID == customerID {
			out = append(out, *cloneOrder(o))
		}
	}
	return out, nil
}

func (s *Store) AdvanceStatus(_ context.Context, id string, next domain.OrderStatus) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if !o.Status.CanAdvanceTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = time.Now().UTC()
	return cloneOrder(o), nil
}

func (s *Store) SetInvoiceURL(_ context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.InvoiceURL = &url
	return nil
}

// Dispatch mirrors the outbox repository. The callback runs without the
// store lock so it may call back into the store.
func (s *Store) Dispatch(ctx context.Context, limit int, fn func(context.Context, outbox.Record) error) (int, error) {
	s.mu.Lock()
	var batch []outbox.Record
	for _, rec := range s.data.outbox {
		if rec.SentAt == nil {
			batch = append(batch, rec)
			if len(batch) == limit {
				break
			}
		}
	}
	s.mu.Unlock()

	sent := 0
	for _, rec := range batch {
		if err := fn(ctx, rec); err != nil {
			return sent, fmt.Errorf("deliver outbox record: %w", err)
		}
		s.markSent(rec.ID)
		sent++
	}
	return sent, nil
}

func (s *Store) markSent(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for i := range s.data.outbox {
		if s.data.outbox[i].ID == id {
			s.data.outbox[i].SentAt = &now
			return
		}
	}
}

// Carts returns the cart snapshot view used by the cart endpoints.
func (s *Store) Carts() *Carts {
	return &Carts{s: s}
}

type Carts struct {
	s *Store
}

func (c *Carts) Items(_ context.Context, userID string) ([]domain.CartItem, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	items := append([]domain.CartItem{}, c.s.data.carts[userID]...)
	return items, nil
}

func (c *Carts) Add(_ context.Context, userID string, item domain.CartItem) error {
	if item.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	items := c.s.data.carts[userID]
	for i := range items {
		if items[i].SameUnit(item) {
			items[i].Quantity += item.Quantity
			return nil
		}
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}
	c.s.data.carts[userID] = append(items, item)
	return nil
}

func (c *Carts) Clear(_ context.Context, userID string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	delete(c.s.data.carts, userID)
	return nil
}

type memTx struct {
	s  *Store
	st *state
}

func (t *memTx) CartItems(_ context.Context, userID string) ([]domain.CartItem, error) {
	return append([]domain.CartItem{}, t.st.carts[userID]...), nil
}

func (t *memTx) ClearCart(_ context.Context, userID string) error {
	delete(t.st.carts, userID)
	return nil
}

func (t *memTx) Product(_ context.Context, id string) (*domain.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	return cloneProduct(p), nil
}

func (t *memTx) DecrementStock(_ context.Context, productID string, sel domain.VariantSelector, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	if t.s.onDec != nil {
		if err := t.s.onDec(productID, sel, qty); err != nil {
			return err
		}
	}

	p, ok := t.st.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	unit, err := domain.ResolveUnit(p, sel)
	if err != nil {
		return err
	}
	if unit.Stock < qty {
		return fmt.Errorf("%w: product %s has %d, needs %d", domain.ErrInsufficientStock, productID, unit.Stock, qty)
	}

	if sku, ok := sel.SKU(); ok {
		for i := range p.Variants {
			if p.Variants[i].SKU == sku {
				p.Variants[i].Stock -= qty
			}
		}
		return nil
	}
	p.Stock -= qty
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, order *domain.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if _, exists := t.st.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	t.st.orders[order.ID] = cloneOrder(order)
	t.st.orderSeq = append(t.st.orderSeq, order.ID)
	return nil
}

func (t *memTx) Order(_ context.Context, id string) (*domain.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

// OrderByPaymentRef resolves every reference ever issued for an order.
func (t *memTx) OrderByPaymentRef(_ context.Context, ref string) (*domain.Order, error) {
	o, ok := t.st.orders[t.st.attempts[ref]]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (t *memTx) SetPaymentRef(_ context.Context, orderID, ref string) error {
	if owner, ok := t.st.attempts[ref]; ok && owner != orderID {
		return fmt.Errorf("payment reference %s already in use by order %s", ref, owner)
	}
	o, ok := t.st.orders[orderID]
	if !ok || o.Status != domain.OrderStatusPending {
		return domain.ErrOrderNotPending
	}
	o.PaymentRef = ref
	o.UpdatedAt = time.Now().UTC()
	t.st.attempts[ref] = orderID
	return nil
}

func (t *memTx) SetStatus(_ context.Context, orderID string, status domain.OrderStatus, paymentStatus domain.PaymentStatus) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	o.PaymentStatus = paymentStatus
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) SetInvoiceURL(_ context.Context, orderID, url string) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.InvoiceURL = &url
	return nil
}

func (t *memTx) CustomerEmail(_ context.Context, userID string) (string, error) {
	email, ok := t.st.emails[userID]
	if !ok {
		return "", domain.ErrUserNotFound
	}
	return email, nil
}

func (t *memTx) Enqueue(_ context.Context, event domain.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	t.st.nextOutbox++
	t.st.outbox = append(t.st.outbox, outbox.Record{
		ID:          t.st.nextOutbox,
		EventID:     event.ID,
		EventType:   event.Type,
		AggregateID: event.OrderID,
		Payload:     data,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

func (st *state) clone() *state {
	c := &state{
		products:   make(map[string]*domain.Product, len(st.products)),
		carts:      make(map[string][]domain.CartItem, len(st.carts)),
		orders:     make(map[string]*domain.Order, len(st.orders)),
		orderSeq:   append([]string(nil), st.orderSeq...),
		emails:     st.emails,
		attempts:   maps.Clone(st.attempts),
		outbox:     append([]outbox.Record(nil), st.outbox...),
		nextOutbox: st.nextOutbox,
	}
	for id, p := range st.products {
		c.products[id] = cloneProduct(p)
	}
	for id, items := range st.carts {
		c.carts[id] = append([]domain.CartItem(nil), items...)
	}
	for id, o := range st.orders {
		c.orders[id] = cloneOrder(o)
	}
	return c
}

func cloneProduct(p *domain.Product) *domain.Product {
	c := *p
	c.Variants = append([]domain.Variant(nil), p.Variants...)
	return &c
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderLine{}, o.Items...)
	if o.InvoiceURL != nil {
		url := *o.InvoiceURL
		c.InvoiceURL = &url
	}
	return &c
}
