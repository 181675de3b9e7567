package domain

import "github.com/shopspring/decimal"

// SalesReport aggregates a transaction history slice for the report
// view. It is a pure reduction over listed transactions.
type SalesReport struct {
	TotalSales       decimal.Decimal
	TransactionCount int
	AverageValue     decimal.Decimal
	TopProducts      []ProductRevenue
}

// ProductRevenue ranks one product by revenue across the reported
// transactions. Revenue uses price-at-time, not current catalog price.
type ProductRevenue struct {
	ProductID    string
	Name         string
	QuantitySold int
	Revenue      decimal.Decimal
}
