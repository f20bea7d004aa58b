package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"caisse/backend/internal/domain"
	"caisse/backend/internal/store"
	"caisse/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) OpenSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error) {
	if session.RegisterID == "" || session.OpenedBy == "" || session.OpeningFloat.IsNegative() {
		return nil, store.ErrInvalidInput
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

	totalsJSON, err := json.Marshal(session.TotalsByMethod)
	if err != nil {
		return nil, err
	}

	// The partial unique index on (register_id) WHERE status = 'open'
	// enforces one open session per register.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cash_sessions (id, register_id, opened_at, opened_by, opening_float, status, cash_expected_running, totals_by_method)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, session.ID, session.RegisterID, session.OpenedAt, session.OpenedBy,
		session.OpeningFloat, session.Status, session.CashExpectedRunning, totalsJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrSessionAlreadyOpen
		}
		return nil, err
	}

	created := session
	return &created, nil
}

func (s *Store) CloseSession(ctx context.Context, sessionID string, closedBy string, countedCash decimal.Decimal, closedAt time.Time) (*domain.CashSession, error) {
	if closedBy == "" || countedCash.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	return retrySerializable(func() (*domain.CashSession, error) {
		return s.closeSessionTx(ctx, sessionID, closedBy, countedCash, closedAt)
	})
}

func (s *Store) closeSessionTx(ctx context.Context, sessionID string, closedBy string, countedCash decimal.Decimal, closedAt time.Time) (*domain.CashSession, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	session, err := scanSession(tx.QueryRowContext(ctx, sessionSelect+`
		WHERE id = $1
		FOR UPDATE
	`, sessionID))
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionStatusOpen {
		return nil, store.ErrSessionNotOpen
	}

	expected := session.CashExpectedRunning
	diff := countedCash.Sub(expected)

	_, err = tx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET status = $1, closed_at = $2, closed_by = $3,
		    expected_cash_total = $4, counted_cash_total = $5, cash_difference = $6
		WHERE id = $7
	`, domain.SessionStatusClosed, closedAt, closedBy, expected, countedCash, diff, sessionID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	session.Status = domain.SessionStatusClosed
	session.ClosedAt = &closedAt
	session.ClosedBy = closedBy
	session.ExpectedCashTotal = &expected
	session.CountedCashTotal = &countedCash
	session.CashDifference = &diff
	return session, nil
}

const sessionSelect = `
	SELECT id, register_id, opened_at, opened_by, opening_float, status,
	       closed_at, closed_by, cash_expected_running,
	       expected_cash_total, counted_cash_total, cash_difference, totals_by_method
	FROM cash_sessions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.CashSession, error) {
	var session domain.CashSession
	var closedAt sql.NullTime
	var closedBy sql.NullString
	var expected, counted, diff decimal.NullDecimal
	var totalsJSON []byte

	err := row.Scan(&session.ID, &session.RegisterID, &session.OpenedAt, &session.OpenedBy,
		&session.OpeningFloat, &session.Status, &closedAt, &closedBy, &session.CashExpectedRunning,
		&expected, &counted, &diff, &totalsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if closedAt.Valid {
		t := closedAt.Time
		session.ClosedAt = &t
	}
	if closedBy.Valid {
		session.ClosedBy = closedBy.String
	}
	if expected.Valid {
		session.ExpectedCashTotal = &expected.Decimal
	}
	if counted.Valid {
		session.CountedCashTotal = &counted.Decimal
	}
	if diff.Valid {
		session.CashDifference = &diff.Decimal
	}
	session.TotalsByMethod = make(map[string]decimal.Decimal)
	if len(totalsJSON) > 0 {
		if err := json.Unmarshal(totalsJSON, &session.TotalsByMethod); err != nil {
			return nil, err
		}
	}
	return &session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.CashSession, error) {
	return scanSession(s.db.QueryRowContext(ctx, sessionSelect+`WHERE id = $1`, sessionID))
}

func (s *Store) GetOpenSession(ctx context.Context, registerID string) (*domain.CashSession, error) {
	return scanSession(s.db.QueryRowContext(ctx, sessionSelect+`
		WHERE register_id = $1 AND status = $2
	`, registerID, domain.SessionStatusOpen))
}

func (s *Store) ListSessionsClosedBetween(ctx context.Context, registerID string, from time.Time, to time.Time) ([]domain.CashSession, error) {
	rows, err := s.db.QueryContext(ctx, sessionSelect+`
		WHERE register_id = $1 AND status = $2
		  AND ($3::timestamptz IS NULL OR closed_at >= $3)
		  AND ($4::timestamptz IS NULL OR closed_at < $4)
		ORDER BY closed_at, id
	`, registerID, domain.SessionStatusClosed, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.CashSession, 0, 8)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CreateSale commits the document, its gapless number and the session update
// in one serializable transaction. Concurrent documents on the same session
// lose the serialization race rather than corrupt the running totals; losers
// are replayed a bounded number of times before surfacing a conflict.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.RegisterID == "" || sale.PaymentMethod == "" || len(sale.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	return retrySerializable(func() (*domain.Sale, error) {
		return s.createSaleTx(ctx, sale)
	})
}

func (s *Store) createSaleTx(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var methodCategory string
	err = tx.QueryRowContext(ctx, `
		SELECT category FROM payment_methods WHERE code = $1
	`, sale.PaymentMethod).Scan(&methodCategory)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	var session *domain.CashSession
	if sale.SessionID != "" {
		session, err = scanSession(tx.QueryRowContext(ctx, sessionSelect+`
			WHERE id = $1
			FOR UPDATE
		`, sale.SessionID))
		if err != nil {
			return nil, err
		}
		if session.Status != domain.SessionStatusOpen {
			return nil, store.ErrSessionNotOpen
		}
		if session.RegisterID != sale.RegisterID {
			return nil, store.ErrInvalidInput
		}
	}

	if sale.InvoiceType == domain.InvoiceTypeCreditNote {
		if err := s.checkRefundable(ctx, tx, sale); err != nil {
			return nil, err
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

	// Gapless per-document-type numbering: the counter row is bumped inside
	// the same transaction as the insert, so a rollback never burns a number.
	err = tx.QueryRowContext(ctx, `
		INSERT INTO doc_counters (doc_type, last_number)
		VALUES ($1, 1)
		ON CONFLICT (doc_type) DO UPDATE SET last_number = doc_counters.last_number + 1
		RETURNING last_number
	`, sale.InvoiceType).Scan(&sale.Number)
	if err != nil {
		return nil, err
	}

	linesJSON, err := json.Marshal(sale.Lines)
	if err != nil {
		return nil, err
	}
	vatJSON, err := json.Marshal(sale.VATBreakdown)
	if err != nil {
		return nil, err
	}
	var discountJSON any
	if sale.CartDiscount != nil {
		discountJSON, err = json.Marshal(sale.CartDiscount)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, number, date, register_id, session_id, customer_ref, currency,
		                   lines, total_ex_tax, total_tax, total_inc_tax, vat_breakdown,
		                   payment_method, cart_discount, cart_discount_amount, line_discounts_total,
		                   invoice_type, original_sale_id, refund_reason, sold_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, sale.ID, sale.Number, sale.Date, sale.RegisterID, nullIfEmpty(sale.SessionID),
		nullIfEmpty(sale.CustomerRef), sale.Currency, linesJSON,
		sale.TotalExTax, sale.TotalTax, sale.TotalIncTax, vatJSON,
		sale.PaymentMethod, discountJSON, sale.CartDiscountAmount, sale.LineDiscountsTotal,
		sale.InvoiceType, nullIfEmpty(sale.OriginalSaleID), nullIfEmpty(sale.RefundReason),
		sale.SoldBy, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if session != nil {
		amount := sale.TotalIncTax
		if sale.InvoiceType == domain.InvoiceTypeCreditNote {
			amount = amount.Neg()
		}
		session.TotalsByMethod[sale.PaymentMethod] = session.TotalsByMethod[sale.PaymentMethod].Add(amount)
		expected := session.CashExpectedRunning
		if methodCategory == domain.PaymentCategoryCash {
			expected = expected.Add(amount)
		}
		totalsJSON, err := json.Marshal(session.TotalsByMethod)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE cash_sessions
			SET cash_expected_running = $1, totals_by_method = $2
			WHERE id = $3
		`, expected, totalsJSON, session.ID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

// checkRefundable validates a credit note's quantities and amounts against
// the original sale and every prior credit note, all locked inside the
// caller's transaction so concurrent refunds serialize on the original row.
func (s *Store) checkRefundable(ctx context.Context, tx *sql.Tx, sale domain.Sale) error {
	var originalLinesJSON []byte
	var originalType string
	err := tx.QueryRowContext(ctx, `
		SELECT lines, invoice_type FROM sales WHERE id = $1 FOR UPDATE
	`, sale.OriginalSaleID).Scan(&originalLinesJSON, &originalType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if originalType != domain.InvoiceTypeInvoice {
		return store.ErrInvalidInput
	}
	var originalLines []domain.SaleLine
	if err := json.Unmarshal(originalLinesJSON, &originalLines); err != nil {
		return err
	}

	remaining := make(map[int]int, len(originalLines))
	remainingAmt := make(map[int]decimal.Decimal, len(originalLines))
	for i, l := range originalLines {
		remaining[i] = l.Quantity
		remainingAmt[i] = l.LineTotalIncTax
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT lines FROM sales
		WHERE original_sale_id = $1 AND invoice_type = $2
		FOR UPDATE
	`, sale.OriginalSaleID, domain.InvoiceTypeCreditNote)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var linesJSON []byte
		if err := rows.Scan(&linesJSON); err != nil {
			return err
		}
		var lines []domain.SaleLine
		if err := json.Unmarshal(linesJSON, &lines); err != nil {
			return err
		}
		for _, l := range lines {
			if l.OriginalLineIndex != nil {
				remaining[*l.OriginalLineIndex] -= l.Quantity
				remainingAmt[*l.OriginalLineIndex] = remainingAmt[*l.OriginalLineIndex].Sub(l.LineTotalIncTax)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	anyLeft := false
	for _, qty := range remaining {
		if qty > 0 {
			anyLeft = true
		}
	}
	if !anyLeft {
		return store.ErrNothingRemaining
	}
	for _, l := range sale.Lines {
		if l.OriginalLineIndex == nil {
			return store.ErrInvalidInput
		}
		idx := *l.OriginalLineIndex
		if idx < 0 || idx >= len(originalLines) {
			return store.ErrInvalidInput
		}
		if l.Quantity < 1 || l.Quantity > remaining[idx] {
			return store.ErrOverRefund
		}
		if l.LineTotalIncTax.GreaterThan(remainingAmt[idx]) {
			return store.ErrOverRefund
		}
	}
	return nil
}

const saleSelect = `
	SELECT id, number, date, register_id, session_id, customer_ref, currency,
	       lines, total_ex_tax, total_tax, total_inc_tax, vat_breakdown,
	       payment_method, cart_discount, cart_discount_amount, line_discounts_total,
	       invoice_type, original_sale_id, refund_reason, sold_by, created_at
	FROM sales
`

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var sessionID, customerRef, originalSaleID, refundReason sql.NullString
	var linesJSON, vatJSON, discountJSON []byte

	err := row.Scan(&sale.ID, &sale.Number, &sale.Date, &sale.RegisterID, &sessionID,
		&customerRef, &sale.Currency, &linesJSON, &sale.TotalExTax, &sale.TotalTax,
		&sale.TotalIncTax, &vatJSON, &sale.PaymentMethod, &discountJSON,
		&sale.CartDiscountAmount, &sale.LineDiscountsTotal, &sale.InvoiceType,
		&originalSaleID, &refundReason, &sale.SoldBy, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	sale.SessionID = sessionID.String
	sale.CustomerRef = customerRef.String
	sale.OriginalSaleID = originalSaleID.String
	sale.RefundReason = refundReason.String
	if err := json.Unmarshal(linesJSON, &sale.Lines); err != nil {
		return nil, err
	}
	if len(vatJSON) > 0 {
		if err := json.Unmarshal(vatJSON, &sale.VATBreakdown); err != nil {
			return nil, err
		}
	}
	if len(discountJSON) > 0 {
		var d domain.CartDiscount
		if err := json.Unmarshal(discountJSON, &d); err != nil {
			return nil, err
		}
		sale.CartDiscount = &d
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	return scanSale(s.db.QueryRowContext(ctx, saleSelect+`WHERE id = $1`, saleID))
}

func (s *Store) ListSales(ctx context.Context, registerID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, saleSelect+`
		WHERE ($1 = '' OR register_id = $1)
		  AND ($2::timestamptz IS NULL OR date >= $2)
		  AND ($3::timestamptz IS NULL OR date < $3)
		ORDER BY date DESC, id
		LIMIT $4
	`, registerID, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSales(rows)
}

func (s *Store) ListSalesBySession(ctx context.Context, sessionID string) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, saleSelect+`
		WHERE session_id = $1
		ORDER BY invoice_type, number
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSales(rows)
}

func (s *Store) ListCreditNotesByOriginal(ctx context.Context, originalSaleID string) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, saleSelect+`
		WHERE original_sale_id = $1 AND invoice_type = $2
		ORDER BY number
	`, originalSaleID, domain.InvoiceTypeCreditNote)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSales(rows)
}

func collectSales(rows *sql.Rows) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CreateZReport(ctx context.Context, report domain.ZReport) (*domain.ZReport, error) {
	if report.RegisterID == "" || report.Date == "" {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if report.ID == "" {
		report.ID = xid.New("zrep")
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO z_report_counters (register_id, last_number)
		VALUES ($1, 1)
		ON CONFLICT (register_id) DO UPDATE SET last_number = z_report_counters.last_number + 1
		RETURNING last_number
	`, report.RegisterID).Scan(&report.Number)
	if err != nil {
		return nil, err
	}

	sessionsJSON, err := json.Marshal(report.Sessions)
	if err != nil {
		return nil, err
	}
	saleIDsJSON, err := json.Marshal(report.SaleIDs)
	if err != nil {
		return nil, err
	}
	totalsJSON, err := json.Marshal(report.DailyTotals)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO z_reports (id, number, register_id, date, generated_at, sessions, sale_ids, daily_totals, hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, report.ID, report.Number, report.RegisterID, report.Date, report.GeneratedAt,
		sessionsJSON, saleIDsJSON, totalsJSON, report.Hash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := report
	return &created, nil
}

const zReportSelect = `
	SELECT id, number, register_id, date, generated_at, sessions, sale_ids, daily_totals, hash
	FROM z_reports
`

func scanZReport(row rowScanner) (*domain.ZReport, error) {
	var report domain.ZReport
	var sessionsJSON, saleIDsJSON, totalsJSON []byte

	err := row.Scan(&report.ID, &report.Number, &report.RegisterID, &report.Date,
		&report.GeneratedAt, &sessionsJSON, &saleIDsJSON, &totalsJSON, &report.Hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(sessionsJSON, &report.Sessions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(saleIDsJSON, &report.SaleIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(totalsJSON, &report.DailyTotals); err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Store) GetZReport(ctx context.Context, reportID string) (*domain.ZReport, error) {
	return scanZReport(s.db.QueryRowContext(ctx, zReportSelect+`WHERE id = $1`, reportID))
}

func (s *Store) GetZReportByRegisterDate(ctx context.Context, registerID string, date string) (*domain.ZReport, error) {
	return scanZReport(s.db.QueryRowContext(ctx, zReportSelect+`
		WHERE register_id = $1 AND date = $2
	`, registerID, date))
}

func (s *Store) ListZReports(ctx context.Context, registerID string, limit int) ([]domain.ZReport, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, zReportSelect+`
		WHERE ($1 = '' OR register_id = $1)
		ORDER BY number DESC
		LIMIT $2
	`, registerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]domain.ZReport, 0, 16)
	for rows.Next() {
		report, err := scanZReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (s *Store) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, category, enabled, requires_open_session
		FROM payment_methods
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	methods := make([]domain.PaymentMethod, 0, 8)
	for rows.Next() {
		var pm domain.PaymentMethod
		if err := rows.Scan(&pm.Code, &pm.Name, &pm.Category, &pm.Enabled, &pm.RequiresOpenSession); err != nil {
			return nil, err
		}
		methods = append(methods, pm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return methods, nil
}

func (s *Store) GetPaymentMethod(ctx context.Context, code string) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := s.db.QueryRowContext(ctx, `
		SELECT code, name, category, enabled, requires_open_session
		FROM payment_methods
		WHERE code = $1
	`, code).Scan(&pm.Code, &pm.Name, &pm.Category, &pm.Enabled, &pm.RequiresOpenSession)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &pm, nil
}

func (s *Store) UpsertPaymentMethod(ctx context.Context, method domain.PaymentMethod) error {
	if method.Code == "" || method.Name == "" {
		return store.ErrInvalidInput
	}
	switch method.Category {
	case domain.PaymentCategoryCash, domain.PaymentCategoryCard, domain.PaymentCategoryCheck,
		domain.PaymentCategoryTransfer, domain.PaymentCategoryOther:
	default:
		return store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_methods (code, name, category, enabled, requires_open_session)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, category = EXCLUDED.category,
		    enabled = EXCLUDED.enabled, requires_open_session = EXCLUDED.requires_open_session
	`, method.Code, method.Name, method.Category, method.Enabled, method.RequiresOpenSession)
	return err
}

func (s *Store) CreateParkedCart(ctx context.Context, parked domain.ParkedCart) (*domain.ParkedCart, error) {
	if parked.RegisterID == "" || len(parked.Cart.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if parked.ID == "" {
		parked.ID = xid.New("park")
	}
	if parked.ParkedAt.IsZero() {
		parked.ParkedAt = time.Now().UTC()
	}

	cartJSON, err := json.Marshal(parked.Cart)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parked_carts (id, register_id, cashier_username, note, cart, parked_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, parked.ID, parked.RegisterID, parked.CashierUsername, parked.Note, cartJSON, parked.ParkedAt)
	if err != nil {
		return nil, err
	}
	created := parked
	return &created, nil
}

func (s *Store) ListParkedCarts(ctx context.Context, registerID string, limit int) ([]domain.ParkedCart, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, register_id, cashier_username, note, cart, parked_at
		FROM parked_carts
		WHERE ($1 = '' OR register_id = $1)
		ORDER BY parked_at, id
		LIMIT $2
	`, registerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ParkedCart, 0, 8)
	for rows.Next() {
		parked, err := scanParkedCart(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *parked)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanParkedCart(row rowScanner) (*domain.ParkedCart, error) {
	var parked domain.ParkedCart
	var cartJSON []byte
	err := row.Scan(&parked.ID, &parked.RegisterID, &parked.CashierUsername, &parked.Note, &cartJSON, &parked.ParkedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(cartJSON, &parked.Cart); err != nil {
		return nil, err
	}
	return &parked, nil
}

func (s *Store) PopParkedCart(ctx context.Context, parkedID string) (*domain.ParkedCart, error) {
	return scanParkedCart(s.db.QueryRowContext(ctx, `
		DELETE FROM parked_carts
		WHERE id = $1
		RETURNING id, register_id, cashier_username, note, cart, parked_at
	`, parkedID))
}

func (s *Store) DeleteParkedCart(ctx context.Context, parkedID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM parked_carts WHERE id = $1`, parkedID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if password == "" {
		return store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $1 WHERE username = $2
	`, password, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, register_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.RegisterID, entry.ActorUsername, entry.ActorRole,
		entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, registerID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, register_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR register_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id
		LIMIT $4
	`, registerID, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, 32)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.RegisterID, &entry.ActorUsername, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isSerializationFailure reports SQLSTATE 40001 (serialization_failure) and
// 40P01 (deadlock_detected), the two ways a serializable transaction loses to
// a concurrent writer.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// txRetries bounds how many times a serializable transaction is replayed
// after losing a serialization race.
const txRetries = 3

func retrySerializable[T any](fn func() (*T, error)) (*T, error) {
	var lastErr error
	for attempt := 0; attempt < txRetries; attempt++ {
		out, err := fn()
		if err == nil || !isSerializationFailure(err) {
			return out, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", store.ErrConflict, lastErr)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
