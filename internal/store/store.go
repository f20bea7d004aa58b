package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"caisse/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrSessionAlreadyOpen = errors.New("session already open for register")
	ErrSessionNotOpen     = errors.New("session not open")
	ErrSessionRequired    = errors.New("open session required")
	ErrNothingRemaining   = errors.New("nothing remaining to refund")
	ErrOverRefund         = errors.New("refund exceeds remaining quantity")
)

// Repository is the persistence contract shared by the in-memory and the
// postgres backends. Multi-entity writes (posting a sale and updating its
// session, stamping a closing report) are atomic inside a single call; the
// service layer never sequences partial writes itself.
type Repository interface {
	// Sessions. OpenSession fails with ErrSessionAlreadyOpen when the
	// register already has an open session; CloseSession fixes the
	// expected/counted/difference trio exactly once and fails with
	// ErrSessionNotOpen on a second attempt.
	OpenSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error)
	CloseSession(ctx context.Context, sessionID string, closedBy string, countedCash decimal.Decimal, closedAt time.Time) (*domain.CashSession, error)
	GetSession(ctx context.Context, sessionID string) (*domain.CashSession, error)
	GetOpenSession(ctx context.Context, registerID string) (*domain.CashSession, error)
	ListSessionsClosedBetween(ctx context.Context, registerID string, from time.Time, to time.Time) ([]domain.CashSession, error)

	// Sales. CreateSale assigns the next gapless number for the document
	// type, freezes the sale, and folds its amounts into the open session
	// (totals by method, running expected cash) in one atomic step. For
	// credit notes it re-validates remaining refundable quantities against
	// the original sale under the same lock, so concurrent refunds cannot
	// oversell the remainder.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, registerID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error)
	ListSalesBySession(ctx context.Context, sessionID string) ([]domain.Sale, error)
	ListCreditNotesByOriginal(ctx context.Context, originalSaleID string) ([]domain.Sale, error)

	// Closing reports. CreateZReport assigns the next per-register report
	// number and fails with ErrConflict when the register-day is already
	// closed; callers resolve the race by re-reading.
	CreateZReport(ctx context.Context, report domain.ZReport) (*domain.ZReport, error)
	GetZReport(ctx context.Context, reportID string) (*domain.ZReport, error)
	GetZReportByRegisterDate(ctx context.Context, registerID string, date string) (*domain.ZReport, error)
	ListZReports(ctx context.Context, registerID string, limit int) ([]domain.ZReport, error)

	// Payment method configuration.
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, code string) (*domain.PaymentMethod, error)
	UpsertPaymentMethod(ctx context.Context, method domain.PaymentMethod) error

	// Parked carts.
	CreateParkedCart(ctx context.Context, parked domain.ParkedCart) (*domain.ParkedCart, error)
	ListParkedCarts(ctx context.Context, registerID string, limit int) ([]domain.ParkedCart, error)
	PopParkedCart(ctx context.Context, parkedID string) (*domain.ParkedCart, error)
	DeleteParkedCart(ctx context.Context, parkedID string) error

	// Auth and audit.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, registerID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
