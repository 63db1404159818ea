// Package margin reports cost, revenue and margin over a set of sales.
package margin

import (
	"github.com/shopspring/decimal"

	"tillclose/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Aggregate sums non-refunded sales. Refunded sales only contribute their
// refunded amount to TotalRefunded.
//
// MarginPercentage is margin over cost. When cost is zero it falls back to
// margin over revenue, and to zero when both are zero.
func Aggregate(sales []domain.SaleRecord) domain.MarginSummary {
	summary := domain.MarginSummary{
		TotalCost:        decimal.Zero,
		TotalRevenue:     decimal.Zero,
		TotalMargin:      decimal.Zero,
		MarginPercentage: decimal.Zero,
		TotalRefunded:    decimal.Zero,
	}

	for _, sale := range sales {
		if sale.Status == domain.SaleStatusRefunded {
			summary.RefundedCount++
			summary.TotalRefunded = summary.TotalRefunded.Add(sale.RefundedAmount)
			continue
		}
		summary.SalesCount++
		summary.TotalRevenue = summary.TotalRevenue.Add(sale.TotalAmount)
		summary.TotalCost = summary.TotalCost.Add(SaleCost(sale))
	}

	summary.TotalMargin = summary.TotalRevenue.Sub(summary.TotalCost)
	summary.MarginPercentage = percentage(summary.TotalMargin, summary.TotalCost, summary.TotalRevenue)
	return summary
}

// SaleCost prefers the sale-level cost and otherwise derives it from the
// lines. Lines without a unit cost contribute nothing.
func SaleCost(sale domain.SaleRecord) decimal.Decimal {
	if sale.CostTotal != nil {
		return *sale.CostTotal
	}
	cost := decimal.Zero
	for _, item := range sale.Items {
		if item.UnitCost == nil {
			continue
		}
		cost = cost.Add(item.UnitCost.Mul(item.Quantity))
	}
	return cost
}

func percentage(margin, cost, revenue decimal.Decimal) decimal.Decimal {
	switch {
	case !cost.IsZero():
		return margin.Div(cost).Mul(hundred).Round(domain.MoneyPlaces)
	case !revenue.IsZero():
		return margin.Div(revenue).Mul(hundred).Round(domain.MoneyPlaces)
	default:
		return decimal.Zero
	}
}
