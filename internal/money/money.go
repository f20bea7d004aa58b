// Package money holds the monetary primitives shared by the pricing engine,
// the session ledger and the fiscal closing pipeline. All stored or displayed
// amounts go through Round2 exactly once; intermediate pro-rata math keeps the
// full decimal precision.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round2 rounds to 2 decimals, half away from zero. This is the single
// rounding policy of the whole engine; it is applied only when a value is
// persisted or displayed, never on intermediate fractions.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// TaxFromExTax derives tax and inc-tax amounts from a tax-exclusive base.
func TaxFromExTax(baseExTax decimal.Decimal, ratePercent decimal.Decimal) (tax decimal.Decimal, incTax decimal.Decimal) {
	tax = baseExTax.Mul(ratePercent).Div(hundred)
	incTax = baseExTax.Add(tax)
	return tax, incTax
}

// ExTaxFromIncTax backs the tax-exclusive base out of a tax-inclusive amount.
// Retail prices are quoted inc-tax, so this is the primary direction.
func ExTaxFromIncTax(incTax decimal.Decimal, ratePercent decimal.Decimal) (baseExTax decimal.Decimal, tax decimal.Decimal) {
	divisor := decimal.NewFromInt(1).Add(ratePercent.Div(hundred))
	baseExTax = incTax.Div(divisor)
	tax = incTax.Sub(baseExTax)
	return baseExTax, tax
}

// ClampPercent bounds a percentage to [0,100].
func ClampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

// Clamp bounds d to [lo,hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}
