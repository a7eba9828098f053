package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartSnapshot is a point-in-time read of a customer's cart. Unit prices are
// captured from the catalog when the snapshot is taken.
type CartSnapshot struct {
	CustomerID  int64
	CartID      int64
	CartVersion int64
	Lines       []CartLine
	TakenAt     time.Time
}

type CartLine struct {
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

func (s CartSnapshot) Empty() bool {
	return len(s.Lines) == 0
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Total is the sum of line subtotals at the captured prices.
func (s CartSnapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
