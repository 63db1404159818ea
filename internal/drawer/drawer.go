// Package drawer computes what a cashier's register should hold at the end of
// the day.
package drawer

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tillclose/backend/internal/domain"
)

// RefundChecker is the part of the refund ledger the calculator consults.
type RefundChecker interface {
	IsRefunded(saleID string) bool
}

type Calculator struct {
	refunds RefundChecker
}

func NewCalculator(refunds RefundChecker) *Calculator {
	return &Calculator{refunds: refunds}
}

// ComputeExpected adds every non-refunded sale's tender to the opening float.
// Sales without a usable tender breakdown go to the unclassified bucket for
// manual review; they are never credited to a currency.
func (c *Calculator) ComputeExpected(cashierID string, sessionSales []domain.SaleRecord, openingFloat domain.MoneyAmount) domain.DrawerExpectation {
	result := domain.DrawerExpectation{
		CashierID:    cashierID,
		OpeningFloat: openingFloat,
		Expected:     openingFloat,
		Deductions:   decimal.Zero,
		Unclassified: decimal.Zero,
	}

	for _, sale := range sessionSales {
		if sale.CashierID != cashierID {
			continue
		}
		if c.isRefunded(sale) {
			result.RefundedSales++
			continue
		}
		result.SalesCount++
		if sale.Tender == nil || sale.Tender.Validate() != nil {
			result.Unclassified = result.Unclassified.Add(sale.TotalAmount)
			result.UnclassifiedSaleIDs = append(result.UnclassifiedSaleIDs, sale.ID)
			continue
		}
		result.Expected = result.Expected.Add(*sale.Tender)
	}

	return result
}

// Expectation is ComputeExpected followed by ApplyDeductions.
func (c *Calculator) Expectation(cashierID string, sessionSales []domain.SaleRecord, openingFloat domain.MoneyAmount, deductionsUSD decimal.Decimal) (domain.DrawerExpectation, error) {
	result := c.ComputeExpected(cashierID, sessionSales, openingFloat)
	adjusted, exceeds, err := ApplyDeductions(result.Expected, deductionsUSD)
	if err != nil {
		return domain.DrawerExpectation{}, err
	}
	result.Expected = adjusted
	result.Deductions = deductionsUSD
	result.DeductionExceedsExpected = exceeds
	return result, nil
}

func (c *Calculator) isRefunded(sale domain.SaleRecord) bool {
	if sale.Status == domain.SaleStatusRefunded {
		return true
	}
	return c.refunds != nil && c.refunds.IsRefunded(sale.ID)
}

// ApplyDeductions takes a USD deduction total (staff meals paid from the
// till) off expected USD cash. The result is clamped at zero and the second
// return value reports that the deduction exceeded what the drawer held.
func ApplyDeductions(expected domain.MoneyAmount, deductionsUSD decimal.Decimal) (domain.MoneyAmount, bool, error) {
	if deductionsUSD.IsNegative() {
		return domain.MoneyAmount{}, false, fmt.Errorf("%w: deduction %s is negative", domain.ErrInvalidAmount, deductionsUSD.String())
	}
	if !domain.HasMoneyPrecision(deductionsUSD) {
		return domain.MoneyAmount{}, false, fmt.Errorf("%w: deduction %s has more than %d decimal places", domain.ErrInvalidAmount, deductionsUSD.String(), domain.MoneyPlaces)
	}

	out := expected
	remaining := expected.USD.Sub(deductionsUSD)
	if remaining.IsNegative() {
		out.USD = decimal.Zero
		return out, true, nil
	}
	out.USD = remaining
	return out, false, nil
}
