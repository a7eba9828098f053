package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart              = errors.New("cart is empty")
	ErrCustomerRequired       = errors.New("customer id required")
	ErrDeliveryAddressMissing = errors.New("delivery address required")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrProductNotFound        = errors.New("product not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStatus          = errors.New("invalid order status")
	ErrInvalidTransition      = errors.New("invalid order status transition")
	ErrInvalidID              = errors.New("invalid id")
	ErrAttemptConflict        = errors.New("checkout attempt already recorded")
	ErrCheckoutUnavailable    = errors.New("checkout temporarily unavailable")
	ErrTransient              = errors.New("transient storage failure")
	ErrReservationLost        = errors.New("stock reservation no longer held")
)

// InsufficientStockError reports the ledger's quantity at the moment a
// conditional decrement was rejected.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// IsBusiness reports whether err is an expected checkout outcome that must not
// be retried.
func IsBusiness(err error) bool {
	var stockErr *InsufficientStockError
	return errors.Is(err, ErrEmptyCart) || errors.As(err, &stockErr)
}
