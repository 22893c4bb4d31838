package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// VariantSelector identifies which stock-keeping unit of a product a cart
// entry or order line draws from. The zero value selects the product's own
// top-level counter; otherwise the selector carries the variant SKU.
//
// It encodes as a JSON string (the SKU) or null, and maps to a nullable
// text column.
type VariantSelector struct {
	sku string
}

func NoVariant() VariantSelector { return VariantSelector{} }

func VariantSKU(sku string) VariantSelector { return VariantSelector{sku: sku} }

func (s VariantSelector) SKU() (string, bool) {
	return s.sku, s.sku != ""
}

func (s VariantSelector) IsZero() bool { return s.sku == "" }

// String returns the SKU, or "" for the top-level counter.
func (s VariantSelector) String() string { return s.sku }

func (s VariantSelector) MarshalJSON() ([]byte, error) {
	if s.sku == "" {
		return []byte("null"), nil
	}
	return json.Marshal(s.sku)
}

// UnmarshalJSON accepts null, a bare SKU string, or an object carrying a
// "sku" field. All three shapes exist in stored carts.
func (s *VariantSelector) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = VariantSelector{}
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			SKU string `json:"sku"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("decode variant selector: %w", err)
		}
		*s = VariantSKU(obj.SKU)
		return nil
	}
	var sku string
	if err := json.Unmarshal(data, &sku); err != nil {
		return fmt.Errorf("decode variant selector: %w", err)
	}
	*s = VariantSKU(sku)
	return nil
}

func (s VariantSelector) Value() (driver.Value, error) {
	if s.sku == "" {
		return nil, nil
	}
	return s.sku, nil
}

func (s *VariantSelector) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = VariantSelector{}
	case string:
		*s = VariantSKU(v)
	case []byte:
		*s = VariantSKU(string(v))
	default:
		return fmt.Errorf("scan variant selector: unsupported type %T", src)
	}
	return nil
}

// StockUnit is the counter a selector resolves to, with the price that
// applies to it.
type StockUnit struct {
	ProductID string
	Variant   VariantSelector
	Price     int64
	Stock     int
}

// ResolveUnit is the single place that maps a selector onto a product's
// counters. A selector naming an unknown SKU is an error and never falls back
// to the top-level counter. A product with variants must be addressed through
// one of them.
func ResolveUnit(p *Product, sel VariantSelector) (StockUnit, error) {
	if sku, ok := sel.SKU(); ok {
		for _, v := range p.Variants {
			if v.SKU == sku {
				return StockUnit{ProductID: p.ID, Variant: sel, Price: v.Price, Stock: v.Stock}, nil
			}
		}
		return StockUnit{}, fmt.Errorf("%w: product %s has no variant %q", ErrVariantNotFound, p.ID, sku)
	}
	if len(p.Variants) > 0 {
		return StockUnit{}, fmt.Errorf("%w: product %s requires a variant selection", ErrVariantNotFound, p.ID)
	}
	return StockUnit{ProductID: p.ID, Price: p.Price, Stock: p.Stock}, nil
}
