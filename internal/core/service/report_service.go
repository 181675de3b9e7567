package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tillworks/till/internal/core/domain"
	"github.com/tillworks/till/internal/port"
)

const topProductLimit = 5

// ReportService builds the sales summary shown on the report view:
// total sales, transaction count, average value, and the top products
// by revenue. All aggregation happens client-side over the listed
// transactions.
type ReportService struct {
	transactions port.TransactionRepository
}

func NewReportService(transactions port.TransactionRepository) *ReportService {
	return &ReportService{transactions: transactions}
}

func (s *ReportService) ListTransactions(ctx context.Context, filter port.TransactionFilter) ([]domain.Transaction, error) {
	return s.transactions.ListTransactions(ctx, filter)
}

func (s *ReportService) BuildReport(ctx context.Context, filter port.TransactionFilter) (domain.SalesReport, error) {
	transactions, err := s.transactions.ListTransactions(ctx, filter)
	if err != nil {
		return domain.SalesReport{}, err
	}
	return Summarize(transactions), nil
}

// Summarize reduces a transaction list into a SalesReport.
func Summarize(transactions []domain.Transaction) domain.SalesReport {
	report := domain.SalesReport{
		TotalSales:   decimal.Zero,
		AverageValue: decimal.Zero,
	}

	byProduct := make(map[string]*domain.ProductRevenue)
	for _, tx := range transactions {
		report.TransactionCount++
		report.TotalSales = report.TotalSales.Add(tx.Total)

		for _, item := range tx.Items {
			entry, ok := byProduct[item.ProductID]
			if !ok {
				entry = &domain.ProductRevenue{ProductID: item.ProductID}
				if item.Product != nil {
					entry.Name = item.Product.Name
				}
				byProduct[item.ProductID] = entry
			}
			entry.QuantitySold += item.Quantity
			entry.Revenue = entry.Revenue.Add(item.LineTotal())
		}
	}

	if report.TransactionCount > 0 {
		report.AverageValue = report.TotalSales.
			Div(decimal.NewFromInt(int64(report.TransactionCount))).
			Round(2)
	}

	ranked := make([]domain.ProductRevenue, 0, len(byProduct))
	for _, entry := range byProduct {
		ranked = append(ranked, *entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if !ranked[i].Revenue.Equal(ranked[j].Revenue) {
			return ranked[i].Revenue.GreaterThan(ranked[j].Revenue)
		}
		return ranked[i].ProductID < ranked[j].ProductID
	})
	if len(ranked) > topProductLimit {
		ranked = ranked[:topProductLimit]
	}
	report.TopProducts = ranked

	return report
}
