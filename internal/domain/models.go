package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineDiscount overrides the catalog price of a single cart line. Percent mode
// keeps the unit price and reduces it by value%; FixedUnitPrice replaces the
// unit price outright (clamped to [0, unit price]).
type LineDiscount struct {
	Mode  string          `json:"mode"`
	Value decimal.Decimal `json:"value"`
}

// CartDiscount applies to the whole cart and is pro-rated across lines.
type CartDiscount struct {
	Mode  string          `json:"mode"`
	Value decimal.Decimal `json:"value"`
}

// SaleLine is a cart item while the cart is open and a frozen invoice line
// once the sale is committed. Amount fields are filled by the pricing engine;
// OriginalLineIndex is set only on credit-note lines and points into the
// original sale's frozen line list.
type SaleLine struct {
	ProductRef        string           `json:"product_ref"`
	Name              string           `json:"name"`
	Quantity          int              `json:"quantity"`
	UnitPriceIncTax   decimal.Decimal  `json:"unit_price_inc_tax"`
	TaxRatePercent    decimal.Decimal  `json:"tax_rate_percent"`
	Discount          *LineDiscount    `json:"discount,omitempty"`
	OriginalUnitPrice *decimal.Decimal `json:"original_unit_price,omitempty"`
	OriginalLineIndex *int             `json:"original_line_index,omitempty"`

	LineTotalIncTax decimal.Decimal `json:"line_total_inc_tax"`
	LineTotalExTax  decimal.Decimal `json:"line_total_ex_tax"`
	LineTax         decimal.Decimal `json:"line_tax"`
}

// Cart is the mutable, client-local sale being built. It is never persisted
// as-is; it is discarded, parked, or committed into an immutable Sale.
type Cart struct {
	Currency string        `json:"currency"`
	Lines    []SaleLine    `json:"lines"`
	Discount *CartDiscount `json:"discount,omitempty"`
}

type VATLine struct {
	RatePercent decimal.Decimal `json:"rate_percent"`
	BaseExTax   decimal.Decimal `json:"base_ex_tax"`
	Tax         decimal.Decimal `json:"tax"`
	TotalIncTax decimal.Decimal `json:"total_inc_tax"`
}

type CartTotals struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	LineDiscountsTotal decimal.Decimal `json:"line_discounts_total"`
	TotalExTax         decimal.Decimal `json:"total_ex_tax"`
	TotalTax           decimal.Decimal `json:"total_tax"`
	TotalIncTax        decimal.Decimal `json:"total_inc_tax"`
	VATBreakdown       []VATLine       `json:"vat_breakdown"`
}

// Sale is a finalized transaction: an invoice or a credit note. Sales are
// immutable after creation; corrections exist only as a new credit-note Sale
// referencing the original.
type Sale struct {
	ID                 string          `json:"id"`
	Number             int64           `json:"number"`
	Date               time.Time       `json:"date"`
	RegisterID         string          `json:"register_id"`
	SessionID          string          `json:"session_id"`
	CustomerRef        string          `json:"customer_ref,omitempty"`
	Currency           string          `json:"currency"`
	Lines              []SaleLine      `json:"lines"`
	TotalExTax         decimal.Decimal `json:"total_ex_tax"`
	TotalTax           decimal.Decimal `json:"total_tax"`
	TotalIncTax        decimal.Decimal `json:"total_inc_tax"`
	VATBreakdown       []VATLine       `json:"vat_breakdown"`
	PaymentMethod      string          `json:"payment_method"`
	CartDiscount       *CartDiscount   `json:"cart_discount,omitempty"`
	CartDiscountAmount decimal.Decimal `json:"cart_discount_amount"`
	LineDiscountsTotal decimal.Decimal `json:"line_discounts_total"`
	InvoiceType        string          `json:"invoice_type"`
	OriginalSaleID     string          `json:"original_sale_id,omitempty"`
	RefundReason       string          `json:"refund_reason,omitempty"`
	SoldBy             string          `json:"sold_by"`
	CreatedAt          time.Time       `json:"created_at"`
}

// DenominationCount is one coin or bill line of a drawer count.
type DenominationCount struct {
	FaceValue decimal.Decimal `json:"face_value"`
	Count     int             `json:"count"`
}

// FloatFromDenominations sums coin/bill counts into a single drawer amount.
func FloatFromDenominations(counts []DenominationCount) decimal.Decimal {
	total := decimal.Zero
	for _, c := range counts {
		if c.Count < 1 {
			continue
		}
		total = total.Add(c.FaceValue.Mul(decimal.NewFromInt(int64(c.Count))))
	}
	return total
}

// CashSession is the open-to-close lifecycle of a register drawer.
// CashExpectedRunning tracks openingFloat + cash sales - cash refunds while
// the session is Open; the Expected/Counted/Difference trio is fixed exactly
// once at close and read-only afterwards.
type CashSession struct {
	ID                  string                     `json:"id"`
	RegisterID          string                     `json:"register_id"`
	OpenedAt            time.Time                  `json:"opened_at"`
	OpenedBy            string                     `json:"opened_by"`
	OpeningFloat        decimal.Decimal            `json:"opening_float"`
	Status              string                     `json:"status"`
	ClosedAt            *time.Time                 `json:"closed_at,omitempty"`
	ClosedBy            string                     `json:"closed_by,omitempty"`
	CashExpectedRunning decimal.Decimal            `json:"cash_expected_running"`
	ExpectedCashTotal   *decimal.Decimal           `json:"expected_cash_total,omitempty"`
	CountedCashTotal    *decimal.Decimal           `json:"counted_cash_total,omitempty"`
	CashDifference      *decimal.Decimal           `json:"cash_difference,omitempty"`
	TotalsByMethod      map[string]decimal.Decimal `json:"totals_by_method"`
}

type ZReportTotals struct {
	TotalExTax       decimal.Decimal            `json:"total_ex_tax"`
	TotalTax         decimal.Decimal            `json:"total_tax"`
	TotalIncTax      decimal.Decimal            `json:"total_inc_tax"`
	VATByRate        []VATLine                  `json:"vat_by_rate"`
	ByMethod         map[string]decimal.Decimal `json:"by_method"`
	CashExpected     decimal.Decimal            `json:"cash_expected"`
	CashCounted      decimal.Decimal            `json:"cash_counted"`
	CashDifference   decimal.Decimal            `json:"cash_difference"`
	InvoiceCount     int                        `json:"invoice_count"`
	CreditNotesCount int                        `json:"credit_notes_count"`
	CreditNotesTotal decimal.Decimal            `json:"credit_notes_total"`
	DiscountsTotal   decimal.Decimal            `json:"discounts_total"`
}

// ZReport is the immutable daily fiscal closing for one register-day,
// generated at most once. Hash stamps the included session/sale ids and the
// final totals so later tampering with included data is detectable.
type ZReport struct {
	ID          string        `json:"id"`
	Number      int64         `json:"number"`
	RegisterID  string        `json:"register_id"`
	Date        string        `json:"date"`
	GeneratedAt time.Time     `json:"generated_at"`
	Sessions    []CashSession `json:"sessions"`
	SaleIDs     []string      `json:"sale_ids"`
	DailyTotals ZReportTotals `json:"daily_totals"`
	Hash        string        `json:"hash"`
}

// PaymentMethod is configuration data consulted before posting a sale:
// cash-category methods with RequiresOpenSession demand an Open session.
type PaymentMethod struct {
	Code                string `json:"code"`
	Name                string `json:"name"`
	Category            string `json:"category"`
	Enabled             bool   `json:"enabled"`
	RequiresOpenSession bool   `json:"requires_open_session"`
}

// Product is the shape the external catalog collaborator resolves a scanned
// or selected product into when a line is first added to a cart.
type Product struct {
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	UnitPriceIncTax decimal.Decimal `json:"unit_price_inc_tax"`
	TaxRatePercent  decimal.Decimal `json:"tax_rate_percent"`
}

type ParkedCart struct {
	ID              string    `json:"id"`
	RegisterID      string    `json:"register_id"`
	CashierUsername string    `json:"cashier_username"`
	Note            string    `json:"note"`
	Cart            Cart      `json:"cart"`
	ParkedAt        time.Time `json:"parked_at"`
}

type OpenSessionRequest struct {
	RegisterID    string              `json:"register_id"`
	OpenedBy      string              `json:"opened_by"`
	OpeningFloat  decimal.Decimal     `json:"opening_float"`
	Denominations []DenominationCount `json:"denominations,omitempty"`
}

type CloseSessionRequest struct {
	SessionID        string              `json:"session_id"`
	ClosedBy         string              `json:"closed_by"`
	CountedCashTotal decimal.Decimal     `json:"counted_cash_total"`
	Denominations    []DenominationCount `json:"denominations,omitempty"`
}

type SessionResponse struct {
	Session CashSession `json:"session"`
}

type PostSaleRequest struct {
	RegisterID    string `json:"register_id"`
	SessionID     string `json:"session_id,omitempty"`
	CustomerRef   string `json:"customer_ref,omitempty"`
	PaymentMethod string `json:"payment_method"`
	Cart          Cart   `json:"cart"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

type GenerateZReportRequest struct {
	RegisterID      string `json:"register_id"`
	Date            string `json:"date"`
	RequireSessions bool   `json:"require_sessions"`
}

type ZReportResponse struct {
	Report ZReport `json:"report"`
}

type RefundItem struct {
	OriginalLineIndex int    `json:"original_line_index"`
	Quantity          int    `json:"quantity"`
	Reason            string `json:"reason,omitempty"`
}

type RefundRequest struct {
	OriginalSaleID string       `json:"original_sale_id"`
	Mode           string       `json:"mode"`
	Items          []RefundItem `json:"items,omitempty"`
	RefundMethod   string       `json:"refund_method"`
	Reason         string       `json:"reason"`
	ManagerPIN     string       `json:"manager_pin,omitempty"`
}

type ParkCartRequest struct {
	RegisterID string `json:"register_id"`
	Note       string `json:"note"`
	Cart       Cart   `json:"cart"`
}

type ParkedCartResponse struct {
	ParkedCart ParkedCart `json:"parked_cart"`
}

type ParkedCartListResponse struct {
	Items []ParkedCart `json:"items"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	RegisterID    string    `json:"register_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	InvoiceTypeInvoice    = "invoice"
	InvoiceTypeCreditNote = "credit_note"
)

const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

const (
	LineDiscountPercent        = "percent"
	LineDiscountFixedUnitPrice = "fixed_unit_price"
)

const (
	CartDiscountPercent = "percent"
	CartDiscountAmount  = "amount"
)

const (
	PaymentCategoryCash     = "cash"
	PaymentCategoryCard     = "card"
	PaymentCategoryCheck    = "check"
	PaymentCategoryTransfer = "transfer"
	PaymentCategoryOther    = "other"
)

const (
	RefundModeFull    = "full"
	RefundModePartial = "partial"
)
