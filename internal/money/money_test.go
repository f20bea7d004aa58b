package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRound2HalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1.00"},
		{"2.675", "2.68"},
		{"-1.005", "-1.01"},
		{"0", "0"},
		{"19.3500", "19.35"},
	}
	for _, tc := range cases {
		got := Round2(dec(tc.in))
		if !got.Equal(dec(tc.want)) {
			t.Fatalf("Round2(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestTaxFromExTax(t *testing.T) {
	tax, incTax := TaxFromExTax(dec("21.50"), dec("20"))
	if !tax.Equal(dec("4.30")) {
		t.Fatalf("tax = %s, want 4.30", tax)
	}
	if !incTax.Equal(dec("25.80")) {
		t.Fatalf("incTax = %s, want 25.80", incTax)
	}
}

func TestExTaxFromIncTaxRoundTrips(t *testing.T) {
	base, tax := ExTaxFromIncTax(dec("25.80"), dec("20"))
	if !Round2(base).Equal(dec("21.50")) {
		t.Fatalf("base = %s, want 21.50", base)
	}
	if !Round2(tax).Equal(dec("4.30")) {
		t.Fatalf("tax = %s, want 4.30", tax)
	}
	if !base.Add(tax).Equal(dec("25.80")) {
		t.Fatalf("base+tax must reproduce the inc-tax amount exactly, got %s", base.Add(tax))
	}
}

func TestClampPercent(t *testing.T) {
	if !ClampPercent(dec("-3")).Equal(decimal.Zero) {
		t.Fatalf("negative percent must clamp to 0")
	}
	if !ClampPercent(dec("140")).Equal(dec("100")) {
		t.Fatalf("percent above 100 must clamp to 100")
	}
	if !ClampPercent(dec("33.3")).Equal(dec("33.3")) {
		t.Fatalf("in-range percent must pass through")
	}
}
