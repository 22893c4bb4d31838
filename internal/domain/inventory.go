package domain

import "time"

// Product is the catalog record as seen by checkout and settlement. A product
// either carries its own Stock counter or a set of Variants, never both.
type Product struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Price    int64     `json:"price"`
	Stock    int       `json:"stock"`
	Variants []Variant `json:"variants,omitempty"`
}

type Variant struct {
	SKU   string `json:"sku"`
	Price int64  `json:"price"`
	Stock int    `json:"stock"`
}

type CartItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Variant   VariantSelector `json:"variant"`
	AddedAt   time.Time       `json:"added_at"`
}

// SameUnit reports whether two cart entries address the same stock counter.
func (c CartItem) SameUnit(other CartItem) bool {
	return c.ProductID == other.ProductID && c.Variant == other.Variant
}
