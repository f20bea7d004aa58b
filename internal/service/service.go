package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"caisse/backend/internal/cache"
	"caisse/backend/internal/catalog"
	"caisse/backend/internal/domain"
	"caisse/backend/internal/fiscal"
	"caisse/backend/internal/money"
	"caisse/backend/internal/pricing"
	"caisse/backend/internal/store"
	"caisse/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const productCacheTTL = 5 * time.Minute

type Service struct {
	repo              store.Repository
	catalog           catalog.Resolver
	products          cache.ProductCache
	defaultRegisterID string
}

func New(repo store.Repository, resolver catalog.Resolver, products cache.ProductCache, defaultRegisterID string) *Service {
	if defaultRegisterID == "" {
		defaultRegisterID = "reg-1"
	}
	if products == nil {
		products = cache.NoopProductCache{}
	}

	return &Service{
		repo:              repo,
		catalog:           resolver,
		products:          products,
		defaultRegisterID: defaultRegisterID,
	}
}

func (s *Service) LookupProduct(ctx context.Context, sku string) (domain.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	key := "product:" + sku
	if cached, hit, err := s.products.Get(ctx, key); err == nil && hit {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: product cache get sku=%s: %v", sku, err)
	}

	product, err := s.catalog.Lookup(ctx, sku)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return domain.Product{}, store.ErrNotFound
		}
		return domain.Product{}, err
	}
	if err := s.products.Set(ctx, key, product, productCacheTTL); err != nil {
		log.Printf("[service] WARN: product cache set sku=%s: %v", sku, err)
	}
	return *product, nil
}

// ComputeCartTotals prices a cart without persisting anything. Called on
// every cart mutation by the register UI; the same function backs PostSale,
// so displayed and committed totals can never diverge.
func (s *Service) ComputeCartTotals(ctx context.Context, cart domain.Cart) (domain.CartTotals, error) {
	_, totals, err := pricing.PriceCart(cart)
	if err != nil {
		return domain.CartTotals{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return totals, nil
}

func (s *Service) OpenSession(ctx context.Context, req domain.OpenSessionRequest) (domain.CashSession, error) {
	if req.RegisterID == "" {
		req.RegisterID = s.defaultRegisterID
	}
	if req.OpenedBy == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			req.OpenedBy = actor.Username
		}
	}

	openingFloat := req.OpeningFloat
	if len(req.Denominations) > 0 {
		openingFloat = domain.FloatFromDenominations(req.Denominations)
	}
	openingFloat = money.Round2(openingFloat)

	session, err := s.repo.OpenSession(ctx, domain.CashSession{
		RegisterID:   req.RegisterID,
		OpenedBy:     req.OpenedBy,
		OpeningFloat: openingFloat,
	})
	if err != nil {
		return domain.CashSession{}, err
	}

	s.logAudit(ctx, session.RegisterID, "session_open", "cash_session", session.ID,
		fmt.Sprintf("float=%s", session.OpeningFloat.StringFixed(2)))
	return *session, nil
}

func (s *Service) CloseSession(ctx context.Context, req domain.CloseSessionRequest) (domain.CashSession, error) {
	if req.SessionID == "" {
		return domain.CashSession{}, store.ErrInvalidInput
	}
	if req.ClosedBy == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			req.ClosedBy = actor.Username
		}
	}

	counted := req.CountedCashTotal
	if len(req.Denominations) > 0 {
		counted = domain.FloatFromDenominations(req.Denominations)
	}
	counted = money.Round2(counted)

	session, err := s.repo.CloseSession(ctx, req.SessionID, req.ClosedBy, counted, time.Now().UTC())
	if err != nil {
		return domain.CashSession{}, err
	}

	s.logAudit(ctx, session.RegisterID, "session_close", "cash_session", session.ID,
		fmt.Sprintf("expected=%s,counted=%s,diff=%s",
			session.ExpectedCashTotal.StringFixed(2),
			session.CountedCashTotal.StringFixed(2),
			session.CashDifference.StringFixed(2)))
	return *session, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.CashSession, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.CashSession{}, err
	}
	return *session, nil
}

func (s *Service) GetOpenSession(ctx context.Context, registerID string) (domain.CashSession, error) {
	if registerID == "" {
		registerID = s.defaultRegisterID
	}
	session, err := s.repo.GetOpenSession(ctx, registerID)
	if err != nil {
		return domain.CashSession{}, err
	}
	return *session, nil
}

func (s *Service) PostSale(ctx context.Context, req domain.PostSaleRequest) (domain.Sale, error) {
	if req.RegisterID == "" {
		req.RegisterID = s.defaultRegisterID
	}
	if req.PaymentMethod == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}

	method, err := s.repo.GetPaymentMethod(ctx, req.PaymentMethod)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Sale{}, fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidInput, req.PaymentMethod)
		}
		return domain.Sale{}, err
	}
	if !method.Enabled {
		return domain.Sale{}, fmt.Errorf("%w: payment method %q disabled", store.ErrInvalidInput, method.Code)
	}

	sessionID, err := s.resolveSession(ctx, req.RegisterID, req.SessionID, *method)
	if err != nil {
		return domain.Sale{}, err
	}

	lines, totals, err := pricing.PriceCart(req.Cart)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	currency := req.Cart.Currency
	if currency == "" {
		currency = "EUR"
	}

	soldBy := "system"
	if actor, ok := ActorFromContext(ctx); ok {
		soldBy = actor.Username
	}

	sale := domain.Sale{
		RegisterID:         req.RegisterID,
		SessionID:          sessionID,
		CustomerRef:        req.CustomerRef,
		Currency:           currency,
		Lines:              lines,
		TotalExTax:         totals.TotalExTax,
		TotalTax:           totals.TotalTax,
		TotalIncTax:        totals.TotalIncTax,
		VATBreakdown:       totals.VATBreakdown,
		PaymentMethod:      method.Code,
		CartDiscount:       req.Cart.Discount,
		CartDiscountAmount: totals.DiscountAmount,
		LineDiscountsTotal: totals.LineDiscountsTotal,
		InvoiceType:        domain.InvoiceTypeInvoice,
		SoldBy:             soldBy,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, created.RegisterID, "sale_post", "sale", created.ID,
		fmt.Sprintf("number=%d,total=%s,method=%s", created.Number, created.TotalIncTax.StringFixed(2), created.PaymentMethod))
	return *created, nil
}

// resolveSession picks the session a document is committed against. An
// explicit session id wins; otherwise the register's open session is attached
// when there is one. Methods flagged RequiresOpenSession refuse to post
// without one.
func (s *Service) resolveSession(ctx context.Context, registerID string, sessionID string, method domain.PaymentMethod) (string, error) {
	if sessionID != "" {
		return sessionID, nil
	}
	open, err := s.repo.GetOpenSession(ctx, registerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if method.RequiresOpenSession {
				return "", store.ErrSessionRequired
			}
			return "", nil
		}
		return "", err
	}
	return open.ID, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, registerID string, date string, limit int) ([]domain.Sale, error) {
	from, to, err := dayWindow(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, registerID, from, to, limit)
}

func (s *Service) ListSalesBySession(ctx context.Context, sessionID string) ([]domain.Sale, error) {
	return s.repo.ListSalesBySession(ctx, sessionID)
}

// RemainingRefundable returns, per original line index, how many units have
// not yet been credited back.
func (s *Service) RemainingRefundable(ctx context.Context, saleID string) (map[int]int, error) {
	original, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if original.InvoiceType != domain.InvoiceTypeInvoice {
		return nil, fmt.Errorf("%w: only invoices can be refunded", store.ErrInvalidInput)
	}
	notes, err := s.repo.ListCreditNotesByOriginal(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return remainingQuantities(*original, notes), nil
}

func remainingQuantities(original domain.Sale, notes []domain.Sale) map[int]int {
	remaining := make(map[int]int, len(original.Lines))
	for i, l := range original.Lines {
		remaining[i] = l.Quantity
	}
	for _, cn := range notes {
		for _, l := range cn.Lines {
			if l.OriginalLineIndex != nil {
				remaining[*l.OriginalLineIndex] -= l.Quantity
			}
		}
	}
	return remaining
}

// remainingAmounts returns, per original line index, the money not yet
// credited back: the line's frozen total minus every prior credit-note line
// total referencing it. This is the hard ceiling for further refunds on that
// line, independent of how per-unit shares round.
func remainingAmounts(original domain.Sale, notes []domain.Sale) map[int]decimal.Decimal {
	remaining := make(map[int]decimal.Decimal, len(original.Lines))
	for i, l := range original.Lines {
		remaining[i] = l.LineTotalIncTax
	}
	for _, cn := range notes {
		for _, l := range cn.Lines {
			if l.OriginalLineIndex != nil {
				remaining[*l.OriginalLineIndex] = remaining[*l.OriginalLineIndex].Sub(l.LineTotalIncTax)
			}
		}
	}
	return remaining
}

func (s *Service) RefundSale(ctx context.Context, req domain.RefundRequest) (domain.Sale, error) {
	if req.OriginalSaleID == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}
	switch req.Mode {
	case domain.RefundModeFull, domain.RefundModePartial:
	default:
		return domain.Sale{}, fmt.Errorf("%w: unknown refund mode %q", store.ErrInvalidInput, req.Mode)
	}

	original, err := s.repo.GetSale(ctx, req.OriginalSaleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if original.InvoiceType != domain.InvoiceTypeInvoice {
		return domain.Sale{}, fmt.Errorf("%w: only invoices can be refunded", store.ErrInvalidInput)
	}

	notes, err := s.repo.ListCreditNotesByOriginal(ctx, req.OriginalSaleID)
	if err != nil {
		return domain.Sale{}, err
	}
	remaining := remainingQuantities(*original, notes)
	remainingAmt := remainingAmounts(*original, notes)

	var items []domain.RefundItem
	switch req.Mode {
	case domain.RefundModeFull:
		anyLeft := false
		for i := range original.Lines {
			if remaining[i] > 0 {
				anyLeft = true
				items = append(items, domain.RefundItem{OriginalLineIndex: i, Quantity: remaining[i]})
			}
		}
		if !anyLeft {
			return domain.Sale{}, store.ErrNothingRemaining
		}
	case domain.RefundModePartial:
		if len(req.Items) == 0 {
			return domain.Sale{}, store.ErrInvalidInput
		}
		for _, item := range req.Items {
			if item.OriginalLineIndex < 0 || item.OriginalLineIndex >= len(original.Lines) {
				return domain.Sale{}, fmt.Errorf("%w: line index %d out of range", store.ErrInvalidInput, item.OriginalLineIndex)
			}
			if item.Quantity < 1 {
				return domain.Sale{}, fmt.Errorf("%w: refund quantity must be >= 1", store.ErrInvalidInput)
			}
			if item.Quantity > remaining[item.OriginalLineIndex] {
				return domain.Sale{}, store.ErrOverRefund
			}
		}
		items = req.Items
	}

	lines := make([]domain.SaleLine, 0, len(items))
	for _, item := range items {
		idx := item.OriginalLineIndex
		lines = append(lines, creditNoteLine(original.Lines[idx], idx, item.Quantity, remaining[idx], remainingAmt[idx]))
	}
	breakdown := pricing.BreakdownByRate(lines)

	totalIncTax := decimal.Zero
	totalExTax := decimal.Zero
	totalTax := decimal.Zero
	for _, b := range breakdown {
		totalIncTax = totalIncTax.Add(b.TotalIncTax)
		totalExTax = totalExTax.Add(b.BaseExTax)
		totalTax = totalTax.Add(b.Tax)
	}

	refundMethod := req.RefundMethod
	if refundMethod == "" {
		refundMethod = original.PaymentMethod
	}
	method, err := s.repo.GetPaymentMethod(ctx, refundMethod)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Sale{}, fmt.Errorf("%w: unknown refund method %q", store.ErrInvalidInput, refundMethod)
		}
		return domain.Sale{}, err
	}

	sessionID, err := s.resolveSession(ctx, original.RegisterID, "", *method)
	if err != nil {
		return domain.Sale{}, err
	}

	soldBy := "system"
	if actor, ok := ActorFromContext(ctx); ok {
		soldBy = actor.Username
	}

	note := domain.Sale{
		RegisterID:     original.RegisterID,
		SessionID:      sessionID,
		CustomerRef:    original.CustomerRef,
		Currency:       original.Currency,
		Lines:          lines,
		TotalExTax:     totalExTax,
		TotalTax:       totalTax,
		TotalIncTax:    totalIncTax,
		VATBreakdown:   breakdown,
		PaymentMethod:  method.Code,
		InvoiceType:    domain.InvoiceTypeCreditNote,
		OriginalSaleID: original.ID,
		RefundReason:   req.Reason,
		SoldBy:         soldBy,
	}

	created, err := s.repo.CreateSale(ctx, note)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, created.RegisterID, "sale_refund", "sale", created.ID,
		fmt.Sprintf("original=%s,mode=%s,total=%s", original.ID, req.Mode, created.TotalIncTax.StringFixed(2)))
	return *created, nil
}

// creditNoteLine builds a refund line for qty units of an original line. The
// refunded amount comes from the original line's final (already discounted)
// total, never from the catalog price, so a discounted sale refunds what was
// actually paid. Refunding everything still outstanding on a line returns the
// exact remaining amount; partial quantities round the per-unit share, capped
// by that remainder, so a sequence of refunds can never credit back more than
// the line's face value minus what prior credit notes already returned.
func creditNoteLine(original domain.SaleLine, index int, qty int, remainingQty int, remainingAmount decimal.Decimal) domain.SaleLine {
	idx := index
	line := domain.SaleLine{
		ProductRef:        original.ProductRef,
		Name:              original.Name,
		Quantity:          qty,
		UnitPriceIncTax:   original.UnitPriceIncTax,
		TaxRatePercent:    original.TaxRatePercent,
		OriginalLineIndex: &idx,
	}

	var incTax decimal.Decimal
	if qty == remainingQty {
		incTax = remainingAmount
	} else {
		perUnit := original.LineTotalIncTax.Div(decimal.NewFromInt(int64(original.Quantity)))
		incTax = money.Round2(perUnit.Mul(decimal.NewFromInt(int64(qty))))
		if incTax.GreaterThan(remainingAmount) {
			incTax = remainingAmount
		}
	}
	base, _ := money.ExTaxFromIncTax(incTax, original.TaxRatePercent)
	line.LineTotalIncTax = incTax
	line.LineTotalExTax = money.Round2(base)
	line.LineTax = incTax.Sub(line.LineTotalExTax)
	return line
}

func (s *Service) GenerateZReport(ctx context.Context, req domain.GenerateZReportRequest) (domain.ZReport, error) {
	if req.RegisterID == "" {
		req.RegisterID = s.defaultRegisterID
	}
	date := req.Date
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	from, to, err := dayWindow(date)
	if err != nil {
		return domain.ZReport{}, err
	}

	// Idempotent per register-day: a second generation returns the stored
	// report unchanged.
	if existing, err := s.repo.GetZReportByRegisterDate(ctx, req.RegisterID, date); err == nil {
		return *existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.ZReport{}, err
	}

	sessions, err := s.repo.ListSessionsClosedBetween(ctx, req.RegisterID, from, to)
	if err != nil {
		return domain.ZReport{}, err
	}
	if len(sessions) == 0 && req.RequireSessions {
		return domain.ZReport{}, fmt.Errorf("%w: no closed sessions for %s on %s", store.ErrInvalidInput, req.RegisterID, date)
	}

	totals, saleIDs, err := s.aggregateDay(ctx, sessions)
	if err != nil {
		return domain.ZReport{}, err
	}

	sessionIDs := make([]string, 0, len(sessions))
	for _, session := range sessions {
		sessionIDs = append(sessionIDs, session.ID)
	}

	report := domain.ZReport{
		ID:          xid.New("zrep"),
		RegisterID:  req.RegisterID,
		Date:        date,
		GeneratedAt: time.Now().UTC(),
		Sessions:    sessions,
		SaleIDs:     saleIDs,
		DailyTotals: totals,
	}
	report.Hash = fiscal.HashReport(report.RegisterID, report.Date, sessionIDs, saleIDs, totals)

	created, err := s.repo.CreateZReport(ctx, report)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost the generation race; the winner's report is the
			// report for this day.
			existing, gerr := s.repo.GetZReportByRegisterDate(ctx, req.RegisterID, date)
			if gerr != nil {
				return domain.ZReport{}, gerr
			}
			return *existing, nil
		}
		return domain.ZReport{}, err
	}

	s.logAudit(ctx, created.RegisterID, "zreport_generate", "z_report", created.ID,
		fmt.Sprintf("date=%s,number=%d,total=%s", created.Date, created.Number, created.DailyTotals.TotalIncTax.StringFixed(2)))
	return *created, nil
}

// aggregateDay folds every sale of the day's sessions into net totals.
// Invoices add, credit notes subtract; cash reconciliation figures come from
// the sessions' close snapshots.
func (s *Service) aggregateDay(ctx context.Context, sessions []domain.CashSession) (domain.ZReportTotals, []string, error) {
	totals := domain.ZReportTotals{ByMethod: map[string]decimal.Decimal{}}
	vatByRate := map[string]*domain.VATLine{}
	saleIDs := make([]string, 0, 64)

	for _, session := range sessions {
		if session.ExpectedCashTotal != nil {
			totals.CashExpected = totals.CashExpected.Add(*session.ExpectedCashTotal)
		}
		if session.CountedCashTotal != nil {
			totals.CashCounted = totals.CashCounted.Add(*session.CountedCashTotal)
		}
		if session.CashDifference != nil {
			totals.CashDifference = totals.CashDifference.Add(*session.CashDifference)
		}
		for method, amount := range session.TotalsByMethod {
			totals.ByMethod[method] = totals.ByMethod[method].Add(amount)
		}

		sales, err := s.repo.ListSalesBySession(ctx, session.ID)
		if err != nil {
			return domain.ZReportTotals{}, nil, err
		}
		for _, sale := range sales {
			saleIDs = append(saleIDs, sale.ID)
			sign := decimal.NewFromInt(1)
			if sale.InvoiceType == domain.InvoiceTypeCreditNote {
				sign = decimal.NewFromInt(-1)
				totals.CreditNotesCount++
				totals.CreditNotesTotal = totals.CreditNotesTotal.Add(sale.TotalIncTax)
			} else {
				totals.InvoiceCount++
				totals.DiscountsTotal = totals.DiscountsTotal.Add(sale.CartDiscountAmount).Add(sale.LineDiscountsTotal)
			}

			totals.TotalExTax = totals.TotalExTax.Add(sale.TotalExTax.Mul(sign))
			totals.TotalTax = totals.TotalTax.Add(sale.TotalTax.Mul(sign))
			totals.TotalIncTax = totals.TotalIncTax.Add(sale.TotalIncTax.Mul(sign))

			for _, v := range sale.VATBreakdown {
				key := v.RatePercent.String()
				bucket, ok := vatByRate[key]
				if !ok {
					bucket = &domain.VATLine{RatePercent: v.RatePercent}
					vatByRate[key] = bucket
				}
				bucket.BaseExTax = bucket.BaseExTax.Add(v.BaseExTax.Mul(sign))
				bucket.Tax = bucket.Tax.Add(v.Tax.Mul(sign))
				bucket.TotalIncTax = bucket.TotalIncTax.Add(v.TotalIncTax.Mul(sign))
			}
		}
	}

	totals.VATByRate = make([]domain.VATLine, 0, len(vatByRate))
	for _, bucket := range vatByRate {
		totals.VATByRate = append(totals.VATByRate, *bucket)
	}
	sort.Slice(totals.VATByRate, func(i, j int) bool {
		return totals.VATByRate[i].RatePercent.LessThan(totals.VATByRate[j].RatePercent)
	})
	return totals, saleIDs, nil
}

func (s *Service) GetZReport(ctx context.Context, reportID string) (domain.ZReport, error) {
	report, err := s.repo.GetZReport(ctx, reportID)
	if err != nil {
		return domain.ZReport{}, err
	}
	return *report, nil
}

func (s *Service) ListZReports(ctx context.Context, registerID string, limit int) ([]domain.ZReport, error) {
	return s.repo.ListZReports(ctx, registerID, limit)
}

// VerifyZReport recomputes a stored report's tamper-evidence stamp.
func (s *Service) VerifyZReport(ctx context.Context, reportID string) (bool, error) {
	report, err := s.repo.GetZReport(ctx, reportID)
	if err != nil {
		return false, err
	}
	return fiscal.Verify(*report), nil
}

func (s *Service) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(ctx)
}

func (s *Service) UpsertPaymentMethod(ctx context.Context, method domain.PaymentMethod) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if err := s.repo.UpsertPaymentMethod(ctx, method); err != nil {
		return err
	}
	s.logAudit(ctx, s.defaultRegisterID, "payment_method_upsert", "payment_method", method.Code,
		fmt.Sprintf("enabled=%t,category=%s", method.Enabled, method.Category))
	return nil
}

func (s *Service) ParkCart(ctx context.Context, req domain.ParkCartRequest) (domain.ParkedCart, error) {
	if req.RegisterID == "" {
		req.RegisterID = s.defaultRegisterID
	}
	if _, _, err := pricing.PriceCart(req.Cart); err != nil {
		return domain.ParkedCart{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	cashier := ""
	if actor, ok := ActorFromContext(ctx); ok {
		cashier = actor.Username
	}

	parked, err := s.repo.CreateParkedCart(ctx, domain.ParkedCart{
		RegisterID:      req.RegisterID,
		CashierUsername: cashier,
		Note:            req.Note,
		Cart:            req.Cart,
	})
	if err != nil {
		return domain.ParkedCart{}, err
	}

	s.logAudit(ctx, parked.RegisterID, "cart_park", "parked_cart", parked.ID,
		fmt.Sprintf("lines=%d", len(parked.Cart.Lines)))
	return *parked, nil
}

func (s *Service) ListParkedCarts(ctx context.Context, registerID string, limit int) ([]domain.ParkedCart, error) {
	if registerID == "" {
		registerID = s.defaultRegisterID
	}
	return s.repo.ListParkedCarts(ctx, registerID, limit)
}

func (s *Service) ResumeParkedCart(ctx context.Context, parkedID string) (domain.ParkedCart, error) {
	parked, err := s.repo.PopParkedCart(ctx, parkedID)
	if err != nil {
		return domain.ParkedCart{}, err
	}
	s.logAudit(ctx, parked.RegisterID, "cart_resume", "parked_cart", parked.ID,
		fmt.Sprintf("lines=%d", len(parked.Cart.Lines)))
	return *parked, nil
}

func (s *Service) DiscardParkedCart(ctx context.Context, parkedID string) error {
	if err := s.repo.DeleteParkedCart(ctx, parkedID); err != nil {
		return err
	}
	s.logAudit(ctx, s.defaultRegisterID, "cart_discard", "parked_cart", parkedID, "discarded")
	return nil
}

func (s *Service) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.CashierUser{}, fmt.Errorf("admin role required")
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || len(req.Password) < 8 {
		return domain.CashierUser{}, store.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.CashierUser{}, err
	}

	user := domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      "cashier",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return domain.CashierUser{}, err
	}

	s.logAudit(ctx, s.defaultRegisterID, "cashier_create", "user", username, "")
	return domain.CashierUser{Username: username, Role: user.Role, Active: true, CreatedAt: user.CreatedAt}, nil
}

func (s *Service) ListCashiers(ctx context.Context) ([]domain.CashierUser, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]domain.CashierUser, 0, len(users))
	for _, u := range users {
		result = append(result, domain.CashierUser{
			Username:  u.Username,
			Role:      u.Role,
			Active:    u.Active,
			CreatedAt: u.CreatedAt,
		})
	}
	return result, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, registerID string, date string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	var from, to time.Time
	if date != "" {
		var err error
		from, to, err = dayWindow(date)
		if err != nil {
			return nil, err
		}
	}
	return s.repo.ListAuditLogs(ctx, registerID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, registerID string, action string, entityType string, entityID string, detail string) {
	if registerID == "" {
		registerID = s.defaultRegisterID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		RegisterID:    registerID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// dayWindow converts a YYYY-MM-DD civil date into its UTC [start, end)
// range. An empty date yields an unbounded window.
func dayWindow(date string) (time.Time, time.Time, error) {
	if date == "" {
		return time.Time{}, time.Time{}, nil
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: bad date %q", store.ErrInvalidInput, date)
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.Add(24 * time.Hour), nil
}
