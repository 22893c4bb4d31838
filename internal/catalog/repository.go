package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/postgres"
)

type Repository struct {
	db postgres.DBTX
}

func NewRepository(db postgres.DBTX) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Product(ctx context.Context, id string) (*domain.Product, error) {
	p := &domain.Product{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, price, stock
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Title, &p.Price, &p.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT sku, price, stock
		FROM product_variants
		WHERE product_id = $1
		ORDER BY sku
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.SKU, &v.Price, &v.Stock); err != nil {
			return nil, err
		}
		p.Variants = append(p.Variants, v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return p, nil
}

// Decrement removes qty units from the counter sel resolves to, but only if
// at least qty units remain. The check and the write are one statement, so
// two concurrent callers cannot both take the last unit.
func (r *Repository) Decrement(ctx context.Context, productID string, sel domain.VariantSelector, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	var (
		result sql.Result
		err    error
	)
	if sku, ok := sel.SKU(); ok {
		result, err = r.db.ExecContext(ctx, `
			UPDATE product_variants
			SET stock = stock - $3
			WHERE product_id = $1 AND sku = $2 AND stock >= $3
		`, productID, sku, qty)
	} else {
		result, err = r.db.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = NOW()
			WHERE id = $1 AND stock >= $2
			  AND NOT EXISTS (SELECT 1 FROM product_variants v WHERE v.product_id = products.id)
		`, productID, qty)
	}
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return r.explainMiss(ctx, productID, sel, qty)
	}

	return nil
}

// explainMiss runs after a conditional decrement matched nothing and tells
// a stale reference apart from a short counter.
func (r *Repository) explainMiss(ctx context.Context, productID string, sel domain.VariantSelector, qty int) error {
	p, err := r.Product(ctx, productID)
	if err != nil {
		return err
	}
	unit, err := domain.ResolveUnit(p, sel)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: product %s%s has %d, needs %d",
		domain.ErrInsufficientStock, productID, skuSuffix(sel), unit.Stock, qty)
}

func skuSuffix(sel domain.VariantSelector) string {
	if sku, ok := sel.SKU(); ok {
		return " variant " + sku
	}
	return ""
}
