package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the fixed precision of every amount the engine stores.
const MoneyPlaces = 2

const (
	BasisNative        = "native"
	BasisUSDEquivalent = "usd_equivalent"
)

// MoneyAmount holds drawer money split by currency and channel. ZIG, USD and
// Rand are cash; Card is the card-terminal total (USD-denominated). Fields are
// never converted into one another implicitly.
type MoneyAmount struct {
	ZIG  decimal.Decimal `json:"zig"`
	USD  decimal.Decimal `json:"usd"`
	Rand decimal.Decimal `json:"rand"`
	Card decimal.Decimal `json:"card"`
}

func NewUSD(amount decimal.Decimal) MoneyAmount {
	return MoneyAmount{USD: amount}
}

func (m MoneyAmount) fields() [4]decimal.Decimal {
	return [4]decimal.Decimal{m.ZIG, m.USD, m.Rand, m.Card}
}

// Validate reports ErrInvalidAmount when any field is negative or carries more
// than two decimal places.
func (m MoneyAmount) Validate() error {
	names := [4]string{"zig", "usd", "rand", "card"}
	for i, v := range m.fields() {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s is negative", ErrInvalidAmount, names[i])
		}
		if !HasMoneyPrecision(v) {
			return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, names[i], MoneyPlaces)
		}
	}
	return nil
}

func (m MoneyAmount) IsZero() bool {
	for _, v := range m.fields() {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

func (m MoneyAmount) Equal(other MoneyAmount) bool {
	return m.ZIG.Equal(other.ZIG) && m.USD.Equal(other.USD) && m.Rand.Equal(other.Rand) && m.Card.Equal(other.Card)
}

func (m MoneyAmount) Add(other MoneyAmount) MoneyAmount {
	return MoneyAmount{
		ZIG:  m.ZIG.Add(other.ZIG),
		USD:  m.USD.Add(other.USD),
		Rand: m.Rand.Add(other.Rand),
		Card: m.Card.Add(other.Card),
	}
}

// Sub subtracts field-wise and fails instead of producing a negative field.
func (m MoneyAmount) Sub(other MoneyAmount) (MoneyAmount, error) {
	out := MoneyAmount{
		ZIG:  m.ZIG.Sub(other.ZIG),
		USD:  m.USD.Sub(other.USD),
		Rand: m.Rand.Sub(other.Rand),
		Card: m.Card.Sub(other.Card),
	}
	if err := out.Validate(); err != nil {
		return MoneyAmount{}, fmt.Errorf("subtract: %w", err)
	}
	return out, nil
}

// Diff returns the signed per-field difference m - other.
func (m MoneyAmount) Diff(other MoneyAmount) Delta {
	return Delta{
		ZIG:  m.ZIG.Sub(other.ZIG),
		USD:  m.USD.Sub(other.USD),
		Rand: m.Rand.Sub(other.Rand),
		Card: m.Card.Sub(other.Card),
	}
}

// NativeSum adds the four fields as plain numbers. The result mixes
// currencies and is only meaningful when every non-zero field shares one
// currency.
func (m MoneyAmount) NativeSum() decimal.Decimal {
	return m.ZIG.Add(m.USD).Add(m.Rand).Add(m.Card)
}

// USDEquivalent converts ZIG and Rand with the given rates and sums with USD
// cash and card. An empty rate table falls back to NativeSum.
func (m MoneyAmount) USDEquivalent(rates RateTable) decimal.Decimal {
	if rates.IsEmpty() {
		return m.NativeSum()
	}
	return rates.zigToUSD(m.ZIG).Add(m.USD).Add(rates.randToUSD(m.Rand)).Add(m.Card).Round(MoneyPlaces)
}

// Delta is a signed MoneyAmount, used for variances.
type Delta struct {
	ZIG  decimal.Decimal `json:"zig"`
	USD  decimal.Decimal `json:"usd"`
	Rand decimal.Decimal `json:"rand"`
	Card decimal.Decimal `json:"card"`
}

func (d Delta) IsZero() bool {
	return d.ZIG.IsZero() && d.USD.IsZero() && d.Rand.IsZero() && d.Card.IsZero()
}

func (d Delta) NativeSum() decimal.Decimal {
	return d.ZIG.Add(d.USD).Add(d.Rand).Add(d.Card)
}

func (d Delta) USDEquivalent(rates RateTable) decimal.Decimal {
	if rates.IsEmpty() {
		return d.NativeSum()
	}
	return rates.zigToUSD(d.ZIG).Add(d.USD).Add(rates.randToUSD(d.Rand)).Add(d.Card).Round(MoneyPlaces)
}

// RateTable is an externally sourced conversion table expressed as units of
// the local currency per one USD. A zero rate means "not supplied".
type RateTable struct {
	ZIGPerUSD  decimal.Decimal `json:"zig_per_usd"`
	RandPerUSD decimal.Decimal `json:"rand_per_usd"`
}

func (r RateTable) IsEmpty() bool {
	return !r.ZIGPerUSD.IsPositive() && !r.RandPerUSD.IsPositive()
}

// Basis names how USDEquivalent combines currencies for this table.
func (r RateTable) Basis() string {
	if r.IsEmpty() {
		return BasisNative
	}
	return BasisUSDEquivalent
}

func (r RateTable) zigToUSD(v decimal.Decimal) decimal.Decimal {
	if !r.ZIGPerUSD.IsPositive() {
		return v
	}
	return v.Div(r.ZIGPerUSD)
}

func (r RateTable) randToUSD(v decimal.Decimal) decimal.Decimal {
	if !r.RandPerUSD.IsPositive() {
		return v
	}
	return v.Div(r.RandPerUSD)
}

// HasMoneyPrecision reports whether v has at most MoneyPlaces decimals.
func HasMoneyPrecision(v decimal.Decimal) bool {
	return v.Equal(v.Round(MoneyPlaces))
}
