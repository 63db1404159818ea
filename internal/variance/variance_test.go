package variance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"tillclose/backend/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func usd(s string) *domain.MoneyAmount {
	m := domain.NewUSD(dec(s))
	return &m
}

func TestComputeVarianceClassification(t *testing.T) {
	engine := NewEngine(domain.RateTable{})
	expected := domain.NewUSD(dec("100"))

	cases := []struct {
		name     string
		counted  *domain.MoneyAmount
		variance string
		status   string
	}{
		{"balanced", usd("100"), "0", domain.VarianceStatusBalanced},
		{"short", usd("90"), "-10", domain.VarianceStatusShort},
		{"over", usd("110"), "10", domain.VarianceStatusOver},
		{"one cent short", usd("99.99"), "-0.01", domain.VarianceStatusShort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.ComputeVariance("c1", expected, tc.counted)
			assert.True(t, got.Variance.Equal(dec(tc.variance)), "variance %s", got.Variance)
			assert.Equal(t, tc.status, got.Status)
			assert.True(t, got.Counted)
		})
	}
}

func TestComputeVariancePendingWithoutCount(t *testing.T) {
	engine := NewEngine(domain.RateTable{})

	got := engine.ComputeVariance("c1", domain.NewUSD(dec("50")), nil)

	assert.Equal(t, domain.VarianceStatusPending, got.Status)
	assert.True(t, got.Variance.IsZero())
	assert.False(t, got.Counted)
}

func TestZeroActivityCashierIsBalanced(t *testing.T) {
	engine := NewEngine(domain.RateTable{})

	assert.Equal(t, domain.VarianceStatusBalanced, engine.ComputeVariance("c1", domain.MoneyAmount{}, nil).Status)
	zero := domain.MoneyAmount{}
	assert.Equal(t, domain.VarianceStatusBalanced, engine.ComputeVariance("c1", domain.MoneyAmount{}, &zero).Status)
}

func TestComputeVarianceKeepsPerCurrencyAndFlagsMismatch(t *testing.T) {
	engine := NewEngine(domain.RateTable{})
	expected := domain.MoneyAmount{USD: dec("10"), ZIG: dec("10")}
	counted := domain.MoneyAmount{USD: dec("20")}

	got := engine.ComputeVariance("c1", expected, &counted)

	assert.Equal(t, domain.BasisNative, got.Basis)
	assert.Equal(t, domain.VarianceStatusBalanced, got.Status)
	assert.True(t, got.CurrencyMismatch)
	assert.True(t, got.PerCurrency.USD.Equal(dec("10")))
	assert.True(t, got.PerCurrency.ZIG.Equal(dec("-10")))
}

func TestComputeVarianceWithRatesUsesUSDEquivalent(t *testing.T) {
	engine := NewEngine(domain.RateTable{ZIGPerUSD: dec("25")})
	expected := domain.MoneyAmount{USD: dec("10"), ZIG: dec("250")}
	counted := domain.MoneyAmount{USD: dec("20")}

	got := engine.ComputeVariance("c1", expected, &counted)

	assert.Equal(t, domain.BasisUSDEquivalent, got.Basis)
	assert.True(t, got.ExpectedTotal.Equal(dec("20")))
	assert.True(t, got.Variance.IsZero())
	assert.True(t, got.CurrencyMismatch)
}

func TestComputeDayVarianceExcludesPending(t *testing.T) {
	engine := NewEngine(domain.RateTable{})
	results := []domain.VarianceResult{
		engine.ComputeVariance("a", domain.NewUSD(dec("100")), usd("100")),
		engine.ComputeVariance("b", domain.NewUSD(dec("50")), usd("45")),
		engine.ComputeVariance("c", domain.NewUSD(dec("20")), usd("21")),
		engine.ComputeVariance("d", domain.NewUSD(dec("70")), nil),
	}

	day := engine.ComputeDayVariance(results)

	assert.Equal(t, 4, day.TotalCashiers)
	assert.Equal(t, 3, day.VerifiedCount)
	assert.Equal(t, 1, day.Balanced)
	assert.Equal(t, 1, day.Short)
	assert.Equal(t, 1, day.Over)
	assert.Equal(t, 1, day.Pending)
	assert.True(t, day.TotalExpected.Equal(dec("170")))
	assert.True(t, day.TotalCounted.Equal(dec("166")))
	assert.True(t, day.TotalVariance.Equal(dec("-4")))
	assert.True(t, day.CountedByCurrency.USD.Equal(dec("166")))
}
