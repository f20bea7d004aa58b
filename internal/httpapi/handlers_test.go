package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"caisse/backend/internal/catalog"
	"caisse/backend/internal/domain"
	"caisse/backend/internal/service"
	"caisse/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	resolver := catalog.NewStatic([]domain.Product{
		{SKU: "SKU-CAFE-01", Name: "Café moulu 250g", UnitPriceIncTax: dec("12.90"), TaxRatePercent: dec("20")},
		{SKU: "SKU-PAIN-01", Name: "Baguette", UnitPriceIncTax: dec("1.20"), TaxRatePercent: dec("5.5")},
	})
	svc := service.New(repo, resolver, nil, "reg-1")
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)

	return New(svc, auth, "*")
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func loginToken(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d (body: %s)", username, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

// doJSON issues an authenticated JSON request carrying a valid CSRF token.
func doJSON(t *testing.T, api *API, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-CSRF-Token", api.generateCSRFToken())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sales", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAdminRoutesRejectCashier(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	cashier := loginToken(t, handler, "cashier", "cashier123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs", nil)
	req.Header.Set("Authorization", "Bearer "+cashier)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("audit-logs as cashier: expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/cashiers", nil)
	req.Header.Set("Authorization", "Bearer "+cashier)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("users/cashiers as cashier: expected 403, got %d", rec.Code)
	}
}

func TestProductLookup(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/SKU-CAFE-01", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/products/SKU-NOPE", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCartTotalsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	cart := domain.Cart{
		Lines: []domain.SaleLine{
			{ProductRef: "SKU-CAFE-01", Name: "Café", Quantity: 2, UnitPriceIncTax: dec("12.90"), TaxRatePercent: dec("20")},
		},
		Discount: &domain.CartDiscount{Mode: domain.CartDiscountPercent, Value: dec("10")},
	}
	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/cart/totals", token, cart)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		Totals domain.CartTotals `json:"totals"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Totals.TotalIncTax.Equal(dec("23.22")) {
		t.Fatalf("expected total 23.22, got %s", resp.Totals.TotalIncTax)
	}
	if !resp.Totals.TotalTax.Equal(dec("3.87")) {
		t.Fatalf("expected tax 3.87, got %s", resp.Totals.TotalTax)
	}
}

func TestPostSaleCashWithoutSessionConflicts(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/sales", token, domain.PostSaleRequest{
		RegisterID:    "reg-1",
		PaymentMethod: "cash",
		Cart: domain.Cart{Lines: []domain.SaleLine{
			{ProductRef: "SKU-PAIN-01", Name: "Baguette", Quantity: 1, UnitPriceIncTax: dec("1.20"), TaxRatePercent: dec("5.5")},
		}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

// TestSaleLifecycle drives the full register day over HTTP: open a drawer,
// post a sale, refund it with a manager override, close the drawer and
// generate the daily closing report.
func TestSaleLifecycle(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/sessions/open", token, domain.OpenSessionRequest{
		RegisterID:   "reg-1",
		OpeningFloat: dec("150.00"),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open session: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var sessResp domain.SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&sessResp); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/sales", token, domain.PostSaleRequest{
		RegisterID:    "reg-1",
		PaymentMethod: "cash",
		Cart: domain.Cart{Lines: []domain.SaleLine{
			{ProductRef: "SKU-CAFE-01", Name: "Café", Quantity: 2, UnitPriceIncTax: dec("12.90"), TaxRatePercent: dec("20")},
		}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post sale: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var saleResp domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&saleResp); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if !saleResp.Sale.TotalIncTax.Equal(dec("25.80")) {
		t.Fatalf("expected sale total 25.80, got %s", saleResp.Sale.TotalIncTax)
	}
	if saleResp.Sale.Number != 1 {
		t.Fatalf("expected sale number 1, got %d", saleResp.Sale.Number)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sales/"+saleResp.Sale.ID+"/refundable", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	refundableRec := httptest.NewRecorder()
	handler.ServeHTTP(refundableRec, req)
	if refundableRec.Code != http.StatusOK {
		t.Fatalf("refundable: expected 200, got %d", refundableRec.Code)
	}
	var refundable struct {
		Remaining map[string]int `json:"remaining"`
	}
	if err := json.NewDecoder(refundableRec.Body).Decode(&refundable); err != nil {
		t.Fatalf("decode refundable: %v", err)
	}
	if refundable.Remaining["0"] != 2 {
		t.Fatalf("expected 2 remaining on line 0, got %v", refundable.Remaining)
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/refunds", token, domain.RefundRequest{
		OriginalSaleID: saleResp.Sale.ID,
		Mode:           domain.RefundModeFull,
		Reason:         "produit défectueux",
		ManagerPIN:     "123456",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("refund: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var noteResp domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&noteResp); err != nil {
		t.Fatalf("decode credit note: %v", err)
	}
	if noteResp.Sale.InvoiceType != domain.InvoiceTypeCreditNote {
		t.Fatalf("expected credit note, got %s", noteResp.Sale.InvoiceType)
	}
	if !noteResp.Sale.TotalIncTax.Equal(dec("25.80")) {
		t.Fatalf("expected refund total 25.80, got %s", noteResp.Sale.TotalIncTax)
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/sessions/close", token, domain.CloseSessionRequest{
		SessionID:        sessResp.Session.ID,
		CountedCashTotal: dec("150.00"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("close session: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var closed domain.SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&closed); err != nil {
		t.Fatalf("decode closed session: %v", err)
	}
	if closed.Session.CashDifference == nil || !closed.Session.CashDifference.Equal(dec("0")) {
		t.Fatalf("expected zero cash difference, got %v", closed.Session.CashDifference)
	}

	today := time.Now().UTC().Format("2006-01-02")
	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/reports/z", token, domain.GenerateZReportRequest{
		RegisterID: "reg-1",
		Date:       today,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate report: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var reportResp domain.ZReportResponse
	if err := json.NewDecoder(rec.Body).Decode(&reportResp); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !reportResp.Report.DailyTotals.TotalIncTax.Equal(dec("0")) {
		t.Fatalf("expected net day total 0, got %s", reportResp.Report.DailyTotals.TotalIncTax)
	}
	if reportResp.Report.DailyTotals.CreditNotesCount != 1 {
		t.Fatalf("expected 1 credit note, got %d", reportResp.Report.DailyTotals.CreditNotesCount)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/z/"+reportResp.Report.ID+"/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	verifyRec := httptest.NewRecorder()
	handler.ServeHTTP(verifyRec, req)
	if verifyRec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", verifyRec.Code)
	}
	var verify map[string]any
	if err := json.NewDecoder(verifyRec.Body).Decode(&verify); err != nil {
		t.Fatalf("decode verify: %v", err)
	}
	if verify["valid"] != true {
		t.Fatalf("expected valid report, got %v", verify["valid"])
	}
}

func TestRefundRejectsWrongManagerPIN(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/refunds", token, domain.RefundRequest{
		OriginalSaleID: "sale-whatever",
		Mode:           domain.RefundModeFull,
		ManagerPIN:     "000000",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestPaymentMethodUpsertAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	method := domain.PaymentMethod{Code: "voucher", Name: "Bon d'achat", Category: domain.PaymentCategoryOther, Enabled: true}

	cashier := loginToken(t, handler, "cashier", "cashier123")
	rec := doJSON(t, api, handler, http.MethodPut, "/api/v1/payment-methods", cashier, method)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	admin := loginToken(t, handler, "admin", "admin123")
	rec = doJSON(t, api, handler, http.MethodPut, "/api/v1/payment-methods", admin, method)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestParkedCartFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/carts/park", token, domain.ParkCartRequest{
		RegisterID: "reg-1",
		Note:       "client parti chercher sa carte",
		Cart: domain.Cart{Lines: []domain.SaleLine{
			{ProductRef: "SKU-PAIN-01", Name: "Baguette", Quantity: 3, UnitPriceIncTax: dec("1.20"), TaxRatePercent: dec("5.5")},
		}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("park: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var parked domain.ParkedCartResponse
	if err := json.NewDecoder(rec.Body).Decode(&parked); err != nil {
		t.Fatalf("decode parked: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/carts/park?register_id=reg-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	listRec := httptest.NewRecorder()
	handler.ServeHTTP(listRec, req)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list parked: expected 200, got %d", listRec.Code)
	}
	var list domain.ParkedCartListResponse
	if err := json.NewDecoder(listRec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 parked cart, got %d", len(list.Items))
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/carts/park/"+parked.ParkedCart.ID+"/resume", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/carts/park/"+parked.ParkedCart.ID+"/resume", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second resume: expected 404, got %d", rec.Code)
	}
}

func TestZReportExportCSV(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "admin", "admin123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/reports/z", token, domain.GenerateZReportRequest{
		RegisterID: "reg-1",
		Date:       "2026-08-28",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var reportResp domain.ZReportResponse
	if err := json.NewDecoder(rec.Body).Decode(&reportResp); err != nil {
		t.Fatalf("decode report: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/z/"+reportResp.Report.ID+"/export?format=csv", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	exportRec := httptest.NewRecorder()
	handler.ServeHTTP(exportRec, req)
	if exportRec.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", exportRec.Code)
	}
	if ct := exportRec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.Contains(exportRec.Body.Bytes(), []byte("report_id")) {
		t.Fatal("expected csv body to contain report_id row")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/z/"+reportResp.Report.ID+"/export?format=html", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	htmlRec := httptest.NewRecorder()
	handler.ServeHTTP(htmlRec, req)
	if htmlRec.Code != http.StatusOK {
		t.Fatalf("html export: expected 200, got %d", htmlRec.Code)
	}
	if !bytes.Contains(htmlRec.Body.Bytes(), []byte("Rapport Z")) {
		t.Fatal("expected html body to contain report title")
	}
}
