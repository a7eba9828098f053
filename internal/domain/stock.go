package domain

// StockLevel is the ledger's record for one product.
type StockLevel struct {
	ProductID   int64
	ProductName string
	Quantity    int
	Version     int64
}

// StockChange is the outcome of one successful ledger mutation.
type StockChange struct {
	ProductID int64
	Previous  int
	Current   int
}

func (c StockChange) Delta() int {
	return c.Current - c.Previous
}

// CrossedBelow reports a decrease that moved the quantity from above the
// threshold to at or below it.
func (c StockChange) CrossedBelow(threshold int) bool {
	return c.Previous > threshold && c.Current <= threshold
}
