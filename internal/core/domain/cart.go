package domain

import "github.com/shopspring/decimal"

// CartLine pairs a product snapshot with the quantity requested for the
// active sale. The snapshot is deliberately not refreshed on later
// mutations; stock ceiling checks run against it.
type CartLine struct {
	Product  Product
	Quantity int
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
