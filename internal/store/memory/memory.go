package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"caisse/backend/internal/domain"
	"caisse/backend/internal/store"
	"caisse/backend/internal/xid"
)

type Store struct {
	mu                    sync.RWMutex
	sessionsByID          map[string]domain.CashSession
	openSessionByRegister map[string]string
	salesByID             map[string]domain.Sale
	creditNotesByOriginal map[string][]string
	saleCounters          map[string]int64
	zReportsByID          map[string]domain.ZReport
	zReportByRegisterDay  map[string]string
	zReportCounters       map[string]int64
	paymentMethods        map[string]domain.PaymentMethod
	parkedCartsByID       map[string]domain.ParkedCart
	usersByUsername       map[string]domain.UserAccount
	auditLogs             []domain.AuditLog
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func seedPaymentMethods() map[string]domain.PaymentMethod {
	methods := []domain.PaymentMethod{
		{Code: "cash", Name: "Espèces", Category: domain.PaymentCategoryCash, Enabled: true, RequiresOpenSession: true},
		{Code: "card", Name: "Carte bancaire", Category: domain.PaymentCategoryCard, Enabled: true},
		{Code: "check", Name: "Chèque", Category: domain.PaymentCategoryCheck, Enabled: true},
		{Code: "transfer", Name: "Virement", Category: domain.PaymentCategoryTransfer, Enabled: true},
	}
	m := make(map[string]domain.PaymentMethod, len(methods))
	for _, pm := range methods {
		m[pm.Code] = pm
	}
	return m
}

func NewSeeded() *Store {
	return &Store{
		sessionsByID:          make(map[string]domain.CashSession),
		openSessionByRegister: make(map[string]string),
		salesByID:             make(map[string]domain.Sale),
		creditNotesByOriginal: make(map[string][]string),
		saleCounters:          make(map[string]int64),
		zReportsByID:          make(map[string]domain.ZReport),
		zReportByRegisterDay:  make(map[string]string),
		zReportCounters:       make(map[string]int64),
		paymentMethods:        seedPaymentMethods(),
		parkedCartsByID:       make(map[string]domain.ParkedCart),
		usersByUsername:       seedUsers(),
		auditLogs:             make([]domain.AuditLog, 0, 128),
	}
}

func cloneSession(s domain.CashSession) domain.CashSession {
	out := s
	out.TotalsByMethod = make(map[string]decimal.Decimal, len(s.TotalsByMethod))
	for k, v := range s.TotalsByMethod {
		out.TotalsByMethod[k] = v
	}
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		out.ClosedAt = &t
	}
	if s.ExpectedCashTotal != nil {
		v := *s.ExpectedCashTotal
		out.ExpectedCashTotal = &v
	}
	if s.CountedCashTotal != nil {
		v := *s.CountedCashTotal
		out.CountedCashTotal = &v
	}
	if s.CashDifference != nil {
		v := *s.CashDifference
		out.CashDifference = &v
	}
	return out
}

func cloneSale(s domain.Sale) domain.Sale {
	out := s
	out.Lines = append([]domain.SaleLine(nil), s.Lines...)
	out.VATBreakdown = append([]domain.VATLine(nil), s.VATBreakdown...)
	if s.CartDiscount != nil {
		d := *s.CartDiscount
		out.CartDiscount = &d
	}
	return out
}

func cloneParkedCart(p domain.ParkedCart) domain.ParkedCart {
	out := p
	out.Cart.Lines = append([]domain.SaleLine(nil), p.Cart.Lines...)
	for i, l := range out.Cart.Lines {
		if l.Discount != nil {
			d := *l.Discount
			out.Cart.Lines[i].Discount = &d
		}
		if l.OriginalUnitPrice != nil {
			v := *l.OriginalUnitPrice
			out.Cart.Lines[i].OriginalUnitPrice = &v
		}
		if l.OriginalLineIndex != nil {
			idx := *l.OriginalLineIndex
			out.Cart.Lines[i].OriginalLineIndex = &idx
		}
	}
	if p.Cart.Discount != nil {
		d := *p.Cart.Discount
		out.Cart.Discount = &d
	}
	return out
}

func cloneZReport(r domain.ZReport) domain.ZReport {
	out := r
	out.Sessions = make([]domain.CashSession, 0, len(r.Sessions))
	for _, s := range r.Sessions {
		out.Sessions = append(out.Sessions, cloneSession(s))
	}
	out.SaleIDs = append([]string(nil), r.SaleIDs...)
	out.DailyTotals.VATByRate = append([]domain.VATLine(nil), r.DailyTotals.VATByRate...)
	out.DailyTotals.ByMethod = make(map[string]decimal.Decimal, len(r.DailyTotals.ByMethod))
	for k, v := range r.DailyTotals.ByMethod {
		out.DailyTotals.ByMethod[k] = v
	}
	return out
}

func (s *Store) OpenSession(_ context.Context, session domain.CashSession) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.RegisterID == "" || session.OpenedBy == "" {
		return nil, store.ErrInvalidInput
	}
	if session.OpeningFloat.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if _, open := s.openSessionByRegister[session.RegisterID]; open {
		return nil, store.ErrSessionAlreadyOpen
	}

	if session.ID == "" {
		session.ID = xid.New("sess")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.SessionStatusOpen
	session.CashExpectedRunning = session.OpeningFloat
	session.TotalsByMethod = make(map[string]decimal.Decimal)
	session.ClosedAt = nil
	session.ExpectedCashTotal = nil
	session.CountedCashTotal = nil
	session.CashDifference = nil

	s.sessionsByID[session.ID] = session
	s.openSessionByRegister[session.RegisterID] = session.ID
	created := cloneSession(session)
	return &created, nil
}

func (s *Store) CloseSession(_ context.Context, sessionID string, closedBy string, countedCash decimal.Decimal, closedAt time.Time) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if session.Status != domain.SessionStatusOpen {
		return nil, store.ErrSessionNotOpen
	}
	if closedBy == "" || countedCash.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	expected := session.CashExpectedRunning
	diff := countedCash.Sub(expected)

	session.Status = domain.SessionStatusClosed
	session.ClosedAt = &closedAt
	session.ClosedBy = closedBy
	session.ExpectedCashTotal = &expected
	session.CountedCashTotal = &countedCash
	session.CashDifference = &diff

	s.sessionsByID[sessionID] = session
	delete(s.openSessionByRegister, session.RegisterID)
	closed := cloneSession(session)
	return &closed, nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := cloneSession(session)
	return &out, nil
}

func (s *Store) GetOpenSession(_ context.Context, registerID string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, open := s.openSessionByRegister[registerID]
	if !open {
		return nil, store.ErrNotFound
	}
	out := cloneSession(s.sessionsByID[id])
	return &out, nil
}

func (s *Store) ListSessionsClosedBetween(_ context.Context, registerID string, from time.Time, to time.Time) ([]domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashSession, 0)
	for _, session := range s.sessionsByID {
		if session.RegisterID != registerID || session.Status != domain.SessionStatusClosed || session.ClosedAt == nil {
			continue
		}
		at := *session.ClosedAt
		if !from.IsZero() && at.Before(from) {
			continue
		}
		if !to.IsZero() && !at.Before(to) {
			continue
		}
		result = append(result, cloneSession(session))
	}
	slices.SortFunc(result, func(a, b domain.CashSession) int {
		if a.ClosedAt.Equal(*b.ClosedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.ClosedAt.Before(*b.ClosedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

// remainingRefundable computes, per original line index, how many units and
// how much money are still refundable given all credit notes already recorded
// against the sale. Caller must hold the lock.
func (s *Store) remainingRefundable(original domain.Sale) (map[int]int, map[int]decimal.Decimal) {
	remaining := make(map[int]int, len(original.Lines))
	amounts := make(map[int]decimal.Decimal, len(original.Lines))
	for i, l := range original.Lines {
		remaining[i] = l.Quantity
		amounts[i] = l.LineTotalIncTax
	}
	for _, cnID := range s.creditNotesByOriginal[original.ID] {
		cn := s.salesByID[cnID]
		for _, l := range cn.Lines {
			if l.OriginalLineIndex != nil {
				remaining[*l.OriginalLineIndex] -= l.Quantity
				amounts[*l.OriginalLineIndex] = amounts[*l.OriginalLineIndex].Sub(l.LineTotalIncTax)
			}
		}
	}
	return remaining, amounts
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.RegisterID == "" || sale.PaymentMethod == "" || len(sale.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	method, knownMethod := s.paymentMethods[sale.PaymentMethod]
	if !knownMethod {
		return nil, store.ErrInvalidInput
	}

	var session domain.CashSession
	var hasSession bool
	if sale.SessionID != "" {
		session, hasSession = s.sessionsByID[sale.SessionID]
		if !hasSession {
			return nil, store.ErrNotFound
		}
		if session.Status != domain.SessionStatusOpen {
			return nil, store.ErrSessionNotOpen
		}
		if session.RegisterID != sale.RegisterID {
			return nil, store.ErrInvalidInput
		}
	}

	if sale.InvoiceType == domain.InvoiceTypeCreditNote {
		original, exists := s.salesByID[sale.OriginalSaleID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if original.InvoiceType != domain.InvoiceTypeInvoice {
			return nil, store.ErrInvalidInput
		}
		remaining, remainingAmt := s.remainingRefundable(original)
		anyLeft := false
		for _, qty := range remaining {
			if qty > 0 {
				anyLeft = true
			}
		}
		if !anyLeft {
			return nil, store.ErrNothingRemaining
		}
		for _, l := range sale.Lines {
			if l.OriginalLineIndex == nil {
				return nil, store.ErrInvalidInput
			}
			idx := *l.OriginalLineIndex
			if idx < 0 || idx >= len(original.Lines) {
				return nil, store.ErrInvalidInput
			}
			if l.Quantity < 1 || l.Quantity > remaining[idx] {
				return nil, store.ErrOverRefund
			}
			if l.LineTotalIncTax.GreaterThan(remainingAmt[idx]) {
				return nil, store.ErrOverRefund
			}
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	now := time.Now().UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	if sale.Date.IsZero() {
		sale.Date = sale.CreatedAt
	}
	s.saleCounters[sale.InvoiceType]++
	sale.Number = s.saleCounters[sale.InvoiceType]

	s.salesByID[sale.ID] = cloneSale(sale)
	if sale.InvoiceType == domain.InvoiceTypeCreditNote {
		s.creditNotesByOriginal[sale.OriginalSaleID] = append(s.creditNotesByOriginal[sale.OriginalSaleID], sale.ID)
	}

	// Fold the document into the open session: invoices add, credit notes
	// subtract. Only cash-category methods move the expected drawer amount.
	if hasSession {
		amount := sale.TotalIncTax
		if sale.InvoiceType == domain.InvoiceTypeCreditNote {
			amount = amount.Neg()
		}
		session.TotalsByMethod[sale.PaymentMethod] = session.TotalsByMethod[sale.PaymentMethod].Add(amount)
		if method.Category == domain.PaymentCategoryCash {
			session.CashExpectedRunning = session.CashExpectedRunning.Add(amount)
		}
		s.sessionsByID[session.ID] = session
	}

	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) ListSales(_ context.Context, registerID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0)
	for _, sale := range s.salesByID {
		if registerID != "" && sale.RegisterID != registerID {
			continue
		}
		if !from.IsZero() && sale.Date.Before(from) {
			continue
		}
		if !to.IsZero() && !sale.Date.Before(to) {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.Date.Equal(b.Date) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListSalesBySession(_ context.Context, sessionID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0)
	for _, sale := range s.salesByID {
		if sale.SessionID != sessionID {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.Number == b.Number {
			return strings.Compare(a.ID, b.ID)
		}
		if a.Number < b.Number {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) ListCreditNotesByOriginal(_ context.Context, originalSaleID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.creditNotesByOriginal[originalSaleID]
	result := make([]domain.Sale, 0, len(ids))
	for _, id := range ids {
		result = append(result, cloneSale(s.salesByID[id]))
	}
	return result, nil
}

func (s *Store) CreateZReport(_ context.Context, report domain.ZReport) (*domain.ZReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if report.RegisterID == "" || report.Date == "" {
		return nil, store.ErrInvalidInput
	}
	key := report.RegisterID + "|" + report.Date
	if _, exists := s.zReportByRegisterDay[key]; exists {
		return nil, store.ErrConflict
	}

	if report.ID == "" {
		report.ID = xid.New("zrep")
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}
	s.zReportCounters[report.RegisterID]++
	report.Number = s.zReportCounters[report.RegisterID]

	s.zReportsByID[report.ID] = cloneZReport(report)
	s.zReportByRegisterDay[key] = report.ID
	created := cloneZReport(report)
	return &created, nil
}

func (s *Store) GetZReport(_ context.Context, reportID string) (*domain.ZReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, exists := s.zReportsByID[reportID]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := cloneZReport(report)
	return &out, nil
}

func (s *Store) GetZReportByRegisterDate(_ context.Context, registerID string, date string) (*domain.ZReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.zReportByRegisterDay[registerID+"|"+date]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := cloneZReport(s.zReportsByID[id])
	return &out, nil
}

func (s *Store) ListZReports(_ context.Context, registerID string, limit int) ([]domain.ZReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ZReport, 0)
	for _, report := range s.zReportsByID {
		if registerID != "" && report.RegisterID != registerID {
			continue
		}
		result = append(result, cloneZReport(report))
	}
	slices.SortFunc(result, func(a, b domain.ZReport) int {
		if a.Number == b.Number {
			return strings.Compare(b.ID, a.ID)
		}
		if a.Number > b.Number {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListPaymentMethods(_ context.Context) ([]domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PaymentMethod, 0, len(s.paymentMethods))
	for _, pm := range s.paymentMethods {
		result = append(result, pm)
	}
	slices.SortFunc(result, func(a, b domain.PaymentMethod) int {
		return strings.Compare(a.Code, b.Code)
	})
	return result, nil
}

func (s *Store) GetPaymentMethod(_ context.Context, code string) (*domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pm, exists := s.paymentMethods[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := pm
	return &out, nil
}

func (s *Store) UpsertPaymentMethod(_ context.Context, method domain.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if method.Code == "" || method.Name == "" {
		return store.ErrInvalidInput
	}
	switch method.Category {
	case domain.PaymentCategoryCash, domain.PaymentCategoryCard, domain.PaymentCategoryCheck,
		domain.PaymentCategoryTransfer, domain.PaymentCategoryOther:
	default:
		return store.ErrInvalidInput
	}
	s.paymentMethods[method.Code] = method
	return nil
}

func (s *Store) CreateParkedCart(_ context.Context, parked domain.ParkedCart) (*domain.ParkedCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parked.RegisterID == "" || len(parked.Cart.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if parked.ID == "" {
		parked.ID = xid.New("park")
	}
	if parked.ParkedAt.IsZero() {
		parked.ParkedAt = time.Now().UTC()
	}
	s.parkedCartsByID[parked.ID] = cloneParkedCart(parked)
	created := cloneParkedCart(parked)
	return &created, nil
}

func (s *Store) ListParkedCarts(_ context.Context, registerID string, limit int) ([]domain.ParkedCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ParkedCart, 0)
	for _, parked := range s.parkedCartsByID {
		if registerID != "" && parked.RegisterID != registerID {
			continue
		}
		result = append(result, cloneParkedCart(parked))
	}
	slices.SortFunc(result, func(a, b domain.ParkedCart) int {
		if a.ParkedAt.Equal(b.ParkedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.ParkedAt.Before(b.ParkedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) PopParkedCart(_ context.Context, parkedID string) (*domain.ParkedCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parked, exists := s.parkedCartsByID[parkedID]
	if !exists {
		return nil, store.ErrNotFound
	}
	delete(s.parkedCartsByID, parkedID)
	out := cloneParkedCart(parked)
	return &out, nil
}

func (s *Store) DeleteParkedCart(_ context.Context, parkedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.parkedCartsByID[parkedID]; !exists {
		return store.ErrNotFound
	}
	delete(s.parkedCartsByID, parkedID)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := user
	return &out, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		result = append(result, u)
	}
	slices.SortFunc(result, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if password == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, registerID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0)
	for _, entry := range s.auditLogs {
		if registerID != "" && entry.RegisterID != registerID {
			continue
		}
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
