// Package fiscal builds the tamper-evidence stamp of a daily closing report.
// The hash covers the register, the civil date, the exact set of sessions and
// sales that were aggregated, and the final totals; recomputing it later over
// the stored report detects any mutation of the included data.
package fiscal

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"caisse/backend/internal/domain"
)

// HashReport returns the hex sha256 of a canonical rendering of the report
// content. Session and sale ids are sorted so the stamp does not depend on
// aggregation order, payment-method codes likewise; amounts are rendered at
// fixed two decimals, the same precision they are persisted at. Every field
// of the final totals is covered, so editing any stored figure — including
// the per-method breakdown, the document counts, or the discount and
// credit-note aggregates — invalidates the stamp.
func HashReport(registerID, date string, sessionIDs, saleIDs []string, totals domain.ZReportTotals) string {
	sessions := append([]string(nil), sessionIDs...)
	sales := append([]string(nil), saleIDs...)
	sort.Strings(sessions)
	sort.Strings(sales)

	var b strings.Builder
	b.WriteString("v2|")
	b.WriteString(registerID)
	b.WriteString("|")
	b.WriteString(date)
	b.WriteString("|sessions:")
	b.WriteString(strings.Join(sessions, ","))
	b.WriteString("|sales:")
	b.WriteString(strings.Join(sales, ","))
	b.WriteString("|ex:")
	b.WriteString(totals.TotalExTax.StringFixed(2))
	b.WriteString("|tax:")
	b.WriteString(totals.TotalTax.StringFixed(2))
	b.WriteString("|inc:")
	b.WriteString(totals.TotalIncTax.StringFixed(2))
	b.WriteString("|cash:")
	b.WriteString(totals.CashExpected.StringFixed(2))
	b.WriteString(",")
	b.WriteString(totals.CashCounted.StringFixed(2))
	b.WriteString(",")
	b.WriteString(totals.CashDifference.StringFixed(2))
	b.WriteString("|invoices:")
	b.WriteString(strconv.Itoa(totals.InvoiceCount))
	b.WriteString("|cn:")
	b.WriteString(strconv.Itoa(totals.CreditNotesCount))
	b.WriteString(":")
	b.WriteString(totals.CreditNotesTotal.StringFixed(2))
	b.WriteString("|disc:")
	b.WriteString(totals.DiscountsTotal.StringFixed(2))

	methods := make([]string, 0, len(totals.ByMethod))
	for code := range totals.ByMethod {
		methods = append(methods, code)
	}
	sort.Strings(methods)
	for _, code := range methods {
		b.WriteString("|method:")
		b.WriteString(code)
		b.WriteString(":")
		b.WriteString(totals.ByMethod[code].StringFixed(2))
	}

	for _, v := range totals.VATByRate {
		b.WriteString("|vat:")
		b.WriteString(v.RatePercent.String())
		b.WriteString(":")
		b.WriteString(v.BaseExTax.StringFixed(2))
		b.WriteString(":")
		b.WriteString(v.Tax.StringFixed(2))
		b.WriteString(":")
		b.WriteString(v.TotalIncTax.StringFixed(2))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the stamp of a stored report and compares it against the
// recorded one.
func Verify(r domain.ZReport) bool {
	sessionIDs := make([]string, 0, len(r.Sessions))
	for _, s := range r.Sessions {
		sessionIDs = append(sessionIDs, s.ID)
	}
	return HashReport(r.RegisterID, r.Date, sessionIDs, r.SaleIDs, r.DailyTotals) == r.Hash
}
