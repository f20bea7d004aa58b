package httpapi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"caisse/backend/internal/domain"
)

// exportZReport renders a stored closing report as a downloadable document.
// Format is selected by the ?format= query parameter: csv or html.
func (a *API) exportZReport(w http.ResponseWriter, r *http.Request, report domain.ZReport) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	switch format {
	case "", "csv":
		a.exportZReportCSV(w, report)
	case "html":
		a.exportZReportHTML(w, report)
	default:
		writeError(w, http.StatusBadRequest, errors.New("unsupported export format"))
	}
}

func (a *API) exportZReportCSV(w http.ResponseWriter, report domain.ZReport) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("z-report-%s-%d.csv", report.Date, report.Number)))

	cw := csv.NewWriter(w)
	defer cw.Flush()

	t := report.DailyTotals
	rows := [][]string{
		{"report_id", report.ID},
		{"number", fmt.Sprintf("%d", report.Number)},
		{"register_id", report.RegisterID},
		{"date", report.Date},
		{"generated_at", report.GeneratedAt.Format("2006-01-02T15:04:05Z07:00")},
		{"hash", report.Hash},
		{"invoice_count", fmt.Sprintf("%d", t.InvoiceCount)},
		{"credit_notes_count", fmt.Sprintf("%d", t.CreditNotesCount)},
		{"credit_notes_total", t.CreditNotesTotal.StringFixed(2)},
		{"discounts_total", t.DiscountsTotal.StringFixed(2)},
		{"total_ex_tax", t.TotalExTax.StringFixed(2)},
		{"total_tax", t.TotalTax.StringFixed(2)},
		{"total_inc_tax", t.TotalIncTax.StringFixed(2)},
		{"cash_expected", t.CashExpected.StringFixed(2)},
		{"cash_counted", t.CashCounted.StringFixed(2)},
		{"cash_difference", t.CashDifference.StringFixed(2)},
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return
		}
	}

	_ = cw.Write([]string{})
	_ = cw.Write([]string{"vat_rate_percent", "base_ex_tax", "tax", "total_inc_tax"})
	for _, v := range t.VATByRate {
		_ = cw.Write([]string{
			v.RatePercent.String(),
			v.BaseExTax.StringFixed(2),
			v.Tax.StringFixed(2),
			v.TotalIncTax.StringFixed(2),
		})
	}

	_ = cw.Write([]string{})
	_ = cw.Write([]string{"payment_method", "total"})
	for _, method := range sortedMethodCodes(t.ByMethod) {
		_ = cw.Write([]string{method, t.ByMethod[method].StringFixed(2)})
	}
}

func sortedMethodCodes(byMethod map[string]decimal.Decimal) []string {
	codes := make([]string, 0, len(byMethod))
	for code := range byMethod {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

var zReportTemplate = template.Must(template.New("zreport").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>Rapport Z n°{{.Report.Number}} — {{.Report.Date}}</title>
<style>
body { font-family: monospace; max-width: 42rem; margin: 2rem auto; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1.5rem; }
th, td { border: 1px solid #999; padding: 0.3rem 0.6rem; text-align: left; }
td.amount, th.amount { text-align: right; }
.hash { word-break: break-all; font-size: 0.8rem; color: #555; }
</style>
</head>
<body>
<h1>Rapport Z n°{{.Report.Number}}</h1>
<p>Caisse {{.Report.RegisterID}} — journée du {{.Report.Date}}<br>
Généré le {{.GeneratedAt}}</p>

<table>
<tr><th>Total HT</th><td class="amount">{{.TotalExTax}}</td></tr>
<tr><th>Total TVA</th><td class="amount">{{.TotalTax}}</td></tr>
<tr><th>Total TTC</th><td class="amount">{{.TotalIncTax}}</td></tr>
<tr><th>Factures</th><td class="amount">{{.Report.DailyTotals.InvoiceCount}}</td></tr>
<tr><th>Avoirs</th><td class="amount">{{.Report.DailyTotals.CreditNotesCount}} ({{.CreditNotesTotal}})</td></tr>
<tr><th>Remises</th><td class="amount">{{.DiscountsTotal}}</td></tr>
</table>

<h2>TVA par taux</h2>
<table>
<tr><th>Taux</th><th class="amount">Base HT</th><th class="amount">TVA</th><th class="amount">TTC</th></tr>
{{range .VAT}}<tr><td>{{.Rate}} %</td><td class="amount">{{.Base}}</td><td class="amount">{{.Tax}}</td><td class="amount">{{.Inc}}</td></tr>
{{end}}</table>

<h2>Règlements</h2>
<table>
<tr><th>Moyen</th><th class="amount">Total</th></tr>
{{range .Methods}}<tr><td>{{.Method}}</td><td class="amount">{{.Amount}}</td></tr>
{{end}}</table>

<h2>Espèces</h2>
<table>
<tr><th>Attendu</th><td class="amount">{{.CashExpected}}</td></tr>
<tr><th>Compté</th><td class="amount">{{.CashCounted}}</td></tr>
<tr><th>Écart</th><td class="amount">{{.CashDifference}}</td></tr>
</table>

<p class="hash">Empreinte: {{.Report.Hash}}</p>
</body>
</html>
`))

type zReportView struct {
	Report           domain.ZReport
	GeneratedAt      string
	TotalExTax       string
	TotalTax         string
	TotalIncTax      string
	CreditNotesTotal string
	DiscountsTotal   string
	CashExpected     string
	CashCounted      string
	CashDifference   string
	VAT              []vatView
	Methods          []methodView
}

type vatView struct {
	Rate string
	Base string
	Tax  string
	Inc  string
}

type methodView struct {
	Method string
	Amount string
}

func (a *API) exportZReportHTML(w http.ResponseWriter, report domain.ZReport) {
	t := report.DailyTotals
	view := zReportView{
		Report:           report,
		GeneratedAt:      report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"),
		TotalExTax:       t.TotalExTax.StringFixed(2),
		TotalTax:         t.TotalTax.StringFixed(2),
		TotalIncTax:      t.TotalIncTax.StringFixed(2),
		CreditNotesTotal: t.CreditNotesTotal.StringFixed(2),
		DiscountsTotal:   t.DiscountsTotal.StringFixed(2),
		CashExpected:     t.CashExpected.StringFixed(2),
		CashCounted:      t.CashCounted.StringFixed(2),
		CashDifference:   t.CashDifference.StringFixed(2),
	}
	for _, v := range t.VATByRate {
		view.VAT = append(view.VAT, vatView{
			Rate: v.RatePercent.String(),
			Base: v.BaseExTax.StringFixed(2),
			Tax:  v.Tax.StringFixed(2),
			Inc:  v.TotalIncTax.StringFixed(2),
		})
	}
	for _, method := range sortedMethodCodes(t.ByMethod) {
		view.Methods = append(view.Methods, methodView{Method: method, Amount: t.ByMethod[method].StringFixed(2)})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := zReportTemplate.Execute(w, view); err != nil {
		return
	}
}
