// Package pricing turns a cart into frozen, tax-split line amounts and cart
// totals. Prices are quoted tax-inclusive; the ex-tax base and the tax amount
// are derived, never entered. All intermediate math runs at full decimal
// precision, rounding happens exactly once per persisted amount.
package pricing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"caisse/backend/internal/domain"
	"caisse/backend/internal/money"
)

var ErrInvalidCart = errors.New("invalid cart")

// EffectiveUnitPrice applies the line discount to the quoted unit price.
// Percent discounts are clamped to [0,100], fixed unit prices to
// [0, quoted price], so a discount can never drive a line negative or above
// its catalog price.
func EffectiveUnitPrice(l domain.SaleLine) (decimal.Decimal, error) {
	if l.Discount == nil {
		return l.UnitPriceIncTax, nil
	}
	switch l.Discount.Mode {
	case domain.LineDiscountPercent:
		pct := money.ClampPercent(l.Discount.Value)
		factor := decimal.NewFromInt(1).Sub(pct.Div(decimal.NewFromInt(100)))
		return l.UnitPriceIncTax.Mul(factor), nil
	case domain.LineDiscountFixedUnitPrice:
		return money.Clamp(l.Discount.Value, decimal.Zero, l.UnitPriceIncTax), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown line discount mode %q", ErrInvalidCart, l.Discount.Mode)
	}
}

// PriceCart computes the frozen amounts for every line and the cart totals.
// The returned lines are copies of the cart lines with LineTotalIncTax,
// LineTotalExTax and LineTax filled in after cart-discount allocation.
//
// The cart discount is pro-rated over lines by their gross share; per-line
// rounding drift is pushed onto the last line so the line totals always sum
// to round2(subtotal - discount). The VAT breakdown is built from those same
// allocated line totals, so breakdown sums match the grand totals exactly.
func PriceCart(cart domain.Cart) ([]domain.SaleLine, domain.CartTotals, error) {
	if err := validate(cart); err != nil {
		return nil, domain.CartTotals{}, err
	}

	lines := make([]domain.SaleLine, len(cart.Lines))
	copy(lines, cart.Lines)

	// Gross per line after line discounts, full precision.
	gross := make([]decimal.Decimal, len(lines))
	subtotal := decimal.Zero
	lineDiscounts := decimal.Zero
	for i, l := range lines {
		unit, err := EffectiveUnitPrice(l)
		if err != nil {
			return nil, domain.CartTotals{}, err
		}
		qty := decimal.NewFromInt(int64(l.Quantity))
		gross[i] = unit.Mul(qty)
		subtotal = subtotal.Add(gross[i])
		lineDiscounts = lineDiscounts.Add(l.UnitPriceIncTax.Sub(unit).Mul(qty))
	}

	discount, err := cartDiscountAmount(cart.Discount, subtotal)
	if err != nil {
		return nil, domain.CartTotals{}, err
	}

	target := money.Round2(subtotal.Sub(discount))

	// Allocate the discount pro rata. Every line but the last is rounded
	// independently; the last line takes whatever is left so the sum is
	// exact by construction.
	allocated := decimal.Zero
	for i := range lines {
		var final decimal.Decimal
		if i == len(lines)-1 {
			final = target.Sub(allocated)
		} else {
			share := decimal.Zero
			if subtotal.IsPositive() {
				share = discount.Mul(gross[i]).Div(subtotal)
			}
			final = money.Round2(gross[i].Sub(share))
		}
		allocated = allocated.Add(final)

		base, _ := money.ExTaxFromIncTax(final, lines[i].TaxRatePercent)
		lines[i].LineTotalIncTax = final
		lines[i].LineTotalExTax = money.Round2(base)
		lines[i].LineTax = final.Sub(lines[i].LineTotalExTax)
	}

	breakdown := BreakdownByRate(lines)

	totals := domain.CartTotals{
		Subtotal:           money.Round2(subtotal),
		DiscountAmount:     money.Round2(discount),
		LineDiscountsTotal: money.Round2(lineDiscounts),
		TotalIncTax:        target,
		VATBreakdown:       breakdown,
	}
	for _, b := range breakdown {
		totals.TotalExTax = totals.TotalExTax.Add(b.BaseExTax)
		totals.TotalTax = totals.TotalTax.Add(b.Tax)
	}
	return lines, totals, nil
}

func validate(cart domain.Cart) error {
	if len(cart.Lines) == 0 {
		return fmt.Errorf("%w: cart has no lines", ErrInvalidCart)
	}
	for i, l := range cart.Lines {
		if l.Quantity < 1 {
			return fmt.Errorf("%w: line %d quantity must be >= 1", ErrInvalidCart, i)
		}
		if l.UnitPriceIncTax.IsNegative() {
			return fmt.Errorf("%w: line %d unit price is negative", ErrInvalidCart, i)
		}
		if l.TaxRatePercent.IsNegative() {
			return fmt.Errorf("%w: line %d tax rate is negative", ErrInvalidCart, i)
		}
	}
	return nil
}

func cartDiscountAmount(d *domain.CartDiscount, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if d == nil {
		return decimal.Zero, nil
	}
	switch d.Mode {
	case domain.CartDiscountPercent:
		pct := money.ClampPercent(d.Value)
		return subtotal.Mul(pct).Div(decimal.NewFromInt(100)), nil
	case domain.CartDiscountAmount:
		return money.Clamp(d.Value, decimal.Zero, subtotal), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown cart discount mode %q", ErrInvalidCart, d.Mode)
	}
}

// BreakdownByRate groups final line totals by tax rate. Bucket inc-tax
// amounts are exact sums of line totals; the base is backed out per bucket
// and the tax is the difference, so base+tax matches the bucket total.
// Credit-note builders reuse this over their refund lines.
func BreakdownByRate(lines []domain.SaleLine) []domain.VATLine {
	var order []decimal.Decimal
	byRate := map[string]decimal.Decimal{}
	for _, l := range lines {
		key := l.TaxRatePercent.String()
		if _, ok := byRate[key]; !ok {
			order = append(order, l.TaxRatePercent)
		}
		byRate[key] = byRate[key].Add(l.LineTotalIncTax)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].LessThan(order[j]) })

	out := make([]domain.VATLine, 0, len(order))
	for _, rate := range order {
		incTax := byRate[rate.String()]
		base, _ := money.ExTaxFromIncTax(incTax, rate)
		baseR := money.Round2(base)
		out = append(out, domain.VATLine{
			RatePercent: rate,
			BaseExTax:   baseR,
			Tax:         incTax.Sub(baseR),
			TotalIncTax: incTax,
		})
	}
	return out
}
