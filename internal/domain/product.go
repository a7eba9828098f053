package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProductExists  = errors.New("product already exists")
	ErrInvalidProduct = errors.New("invalid product")
)

type Product struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	Stock     int
	CreatedAt time.Time
}

// Validate checks fields required before a product is stored.
func (p Product) Validate() error {
	if p.ID <= 0 || strings.TrimSpace(p.Name) == "" {
		return ErrInvalidProduct
	}
	if p.Price.IsNegative() || p.Stock < 0 {
		return ErrInvalidProduct
	}
	return nil
}
