package cart

import (
	"context"

	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/postgres"
)

type Repository struct {
	db postgres.DBTX
}

func NewRepository(db postgres.DBTX) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Items(ctx context.Context, userID string) ([]domain.CartItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, variant_sku, quantity, added_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY added_at, product_id, variant_sku
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ProductID, &item.Variant, &item.Quantity, &item.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// Add merges item into the user's cart, summing quantities for an entry that
// addresses the same stock unit. The top-level counter is stored as an empty
// SKU because the column is part of the primary key.
func (r *Repository) Add(ctx context.Context, userID string, item domain.CartItem) error {
	if item.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, variant_sku, quantity, added_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, product_id, variant_sku)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, userID, item.ProductID, item.Variant.String(), item.Quantity)
	return err
}

func (r *Repository) Clear(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}
