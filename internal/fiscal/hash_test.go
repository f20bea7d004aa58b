package fiscal

import (
	"testing"

	"github.com/shopspring/decimal"

	"caisse/backend/internal/domain"
)

func totals() domain.ZReportTotals {
	return domain.ZReportTotals{
		TotalExTax:  decimal.RequireFromString("100.00"),
		TotalTax:    decimal.RequireFromString("20.00"),
		TotalIncTax: decimal.RequireFromString("120.00"),
		ByMethod: map[string]decimal.Decimal{
			"cash": decimal.RequireFromString("70.00"),
			"card": decimal.RequireFromString("50.00"),
		},
		InvoiceCount:     3,
		CreditNotesCount: 1,
		CreditNotesTotal: decimal.RequireFromString("10.00"),
		DiscountsTotal:   decimal.RequireFromString("2.50"),
	}
}

func TestHashReportStableUnderOrdering(t *testing.T) {
	a := HashReport("reg-1", "2024-03-01", []string{"s2", "s1"}, []string{"b", "a"}, totals())
	b := HashReport("reg-1", "2024-03-01", []string{"s1", "s2"}, []string{"a", "b"}, totals())
	if a != b {
		t.Fatalf("hash must not depend on id ordering")
	}
	if len(a) != 64 {
		t.Fatalf("want hex sha256, got %q", a)
	}
}

func TestHashReportSensitiveToContent(t *testing.T) {
	base := HashReport("reg-1", "2024-03-01", []string{"s1"}, []string{"a"}, totals())

	if got := HashReport("reg-2", "2024-03-01", []string{"s1"}, []string{"a"}, totals()); got == base {
		t.Fatalf("register change must change the hash")
	}
	if got := HashReport("reg-1", "2024-03-02", []string{"s1"}, []string{"a"}, totals()); got == base {
		t.Fatalf("date change must change the hash")
	}
	if got := HashReport("reg-1", "2024-03-01", []string{"s1"}, []string{"a", "x"}, totals()); got == base {
		t.Fatalf("sale set change must change the hash")
	}
	mutated := totals()
	mutated.TotalIncTax = decimal.RequireFromString("120.01")
	if got := HashReport("reg-1", "2024-03-01", []string{"s1"}, []string{"a"}, mutated); got == base {
		t.Fatalf("total change must change the hash")
	}
}

func TestHashReportCoversEveryTotalsField(t *testing.T) {
	base := HashReport("reg-1", "2024-03-01", []string{"s1"}, []string{"a"}, totals())

	mutations := map[string]func(*domain.ZReportTotals){
		"by-method amount": func(tt *domain.ZReportTotals) {
			tt.ByMethod["cash"] = decimal.RequireFromString("70.01")
		},
		"by-method shuffle": func(tt *domain.ZReportTotals) {
			// Swap cash and card while keeping the grand totals intact.
			tt.ByMethod["cash"], tt.ByMethod["card"] = tt.ByMethod["card"], tt.ByMethod["cash"]
		},
		"invoice count": func(tt *domain.ZReportTotals) {
			tt.InvoiceCount++
		},
		"credit notes count": func(tt *domain.ZReportTotals) {
			tt.CreditNotesCount++
		},
		"credit notes total": func(tt *domain.ZReportTotals) {
			tt.CreditNotesTotal = decimal.RequireFromString("10.01")
		},
		"discounts total": func(tt *domain.ZReportTotals) {
			tt.DiscountsTotal = decimal.RequireFromString("2.51")
		},
	}
	for name, mutate := range mutations {
		mutated := totals()
		mutate(&mutated)
		if got := HashReport("reg-1", "2024-03-01", []string{"s1"}, []string{"a"}, mutated); got == base {
			t.Fatalf("%s change must change the hash", name)
		}
	}
}

func TestVerify(t *testing.T) {
	r := domain.ZReport{
		RegisterID: "reg-1",
		Date:       "2024-03-01",
		Sessions:   []domain.CashSession{{ID: "s1"}},
		SaleIDs:    []string{"a"},
	}
	r.DailyTotals = totals()
	r.Hash = HashReport(r.RegisterID, r.Date, []string{"s1"}, r.SaleIDs, r.DailyTotals)

	if !Verify(r) {
		t.Fatalf("freshly stamped report must verify")
	}
	r.DailyTotals.TotalIncTax = decimal.RequireFromString("999.00")
	if Verify(r) {
		t.Fatalf("mutated report must fail verification")
	}
}
