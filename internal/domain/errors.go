package domain

import "errors"

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrProductNotFound   = errors.New("product not found")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")

	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderNotPending   = errors.New("order already processed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("access denied")
	ErrMissingEmail      = errors.New("customer email missing")
	ErrUserNotFound      = errors.New("user not found")
)
