// Package variance compares what each drawer should hold against what was
// counted.
//
// The single-number variance is a reporting convenience. With a rate table it
// is a USD equivalent; without one it is the plain sum of the four fields,
// which mixes currencies and is labelled BasisNative. Per-currency deltas are
// always kept next to it and are the figures to reconcile against.
package variance

import (
	"github.com/shopspring/decimal"

	"tillclose/backend/internal/domain"
)

type Engine struct {
	rates domain.RateTable
}

func NewEngine(rates domain.RateTable) *Engine {
	return &Engine{rates: rates}
}

func (e *Engine) Basis() string {
	return e.rates.Basis()
}

// ComputeVariance classifies one cashier. A nil count is Pending unless the
// drawer is expected to be empty, in which case there is nothing to count and
// the cashier is Balanced.
func (e *Engine) ComputeVariance(cashierID string, expected domain.MoneyAmount, counted *domain.MoneyAmount) domain.VarianceResult {
	result := domain.VarianceResult{
		CashierID:     cashierID,
		Expected:      expected,
		ExpectedTotal: expected.USDEquivalent(e.rates),
		ActualTotal:   decimal.Zero,
		Variance:      decimal.Zero,
		Basis:         e.rates.Basis(),
	}

	if counted == nil {
		if expected.IsZero() {
			result.Status = domain.VarianceStatusBalanced
		} else {
			result.Status = domain.VarianceStatusPending
		}
		return result
	}

	result.Counted = true
	result.Actual = *counted
	result.ActualTotal = counted.USDEquivalent(e.rates)
	result.PerCurrency = counted.Diff(expected)
	result.Variance = result.PerCurrency.USDEquivalent(e.rates)
	result.Status = classify(result.Variance)
	result.CurrencyMismatch = result.Variance.IsZero() && !result.PerCurrency.IsZero()
	return result
}

func classify(v decimal.Decimal) string {
	switch v.Sign() {
	case 0:
		return domain.VarianceStatusBalanced
	case -1:
		return domain.VarianceStatusShort
	default:
		return domain.VarianceStatusOver
	}
}

// ComputeDayVariance aggregates cashier results. Pending cashiers count
// toward TotalCashiers only.
func (e *Engine) ComputeDayVariance(results []domain.VarianceResult) domain.DayVariance {
	day := domain.DayVariance{
		TotalExpected: decimal.Zero,
		TotalCounted:  decimal.Zero,
		TotalVariance: decimal.Zero,
		TotalCashiers: len(results),
		Basis:         e.rates.Basis(),
	}

	for _, r := range results {
		switch r.Status {
		case domain.VarianceStatusPending:
			day.Pending++
			continue
		case domain.VarianceStatusBalanced:
			day.Balanced++
		case domain.VarianceStatusShort:
			day.Short++
		case domain.VarianceStatusOver:
			day.Over++
		}
		day.VerifiedCount++
		day.TotalExpected = day.TotalExpected.Add(r.ExpectedTotal)
		day.TotalCounted = day.TotalCounted.Add(r.ActualTotal)
		day.TotalVariance = day.TotalVariance.Add(r.Variance)
		day.ExpectedByCurrency = day.ExpectedByCurrency.Add(r.Expected)
		day.CountedByCurrency = day.CountedByCurrency.Add(r.Actual)
	}

	return day
}
