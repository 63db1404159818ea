package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tillclose/backend/internal/domain"
)

var (
	ErrNotFound      = fmt.Errorf("%w: record", domain.ErrNotFound)
	ErrInvalidRecord = fmt.Errorf("%w: record rejected by store", domain.ErrInvalidRequest)
)

// Repository is the durable store behind the reconciliation engine. Time
// windows are half-open: from is inclusive, to is exclusive.
type Repository interface {
	ListSales(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.SaleRecord, error)
	ListSessionSales(ctx context.Context, storeID string, cashierID string, from time.Time, to time.Time) ([]domain.SaleRecord, error)
	FindSale(ctx context.Context, id string) (*domain.SaleRecord, error)
	CreateSale(ctx context.Context, sale domain.SaleRecord) (*domain.SaleRecord, error)

	ListDrawers(ctx context.Context, storeID string) ([]domain.Drawer, error)
	SetDrawerFloat(ctx context.Context, drawer domain.Drawer) error

	CreateStaffDeduction(ctx context.Context, deduction domain.StaffDeduction) (*domain.StaffDeduction, error)
	ListStaffDeductions(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.StaffDeduction, error)
	SumStaffDeductions(ctx context.Context, storeID string, cashierID string, from time.Time, to time.Time) (decimal.Decimal, error)

	PersistCashierCount(ctx context.Context, count domain.CashierCount) error
	ListCashierCounts(ctx context.Context, storeID string, day string) ([]domain.CashierCount, error)

	// DeleteDaySales removes the window's sales and zeroes every drawer float
	// of the store. Running it on an already empty window succeeds with a
	// zero DeletedCount.
	DeleteDaySales(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.DeleteResult, error)

	SaveReconciliationSession(ctx context.Context, session domain.ReconciliationSession) error
	GetReconciliationSession(ctx context.Context, storeID string, day string) (*domain.ReconciliationSession, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// ValidateSale checks a sale before it is stored. A missing tender is legal;
// a present one must be well formed.
func ValidateSale(sale domain.SaleRecord) error {
	if sale.ID == "" || sale.StoreID == "" || sale.CashierID == "" {
		return ErrInvalidRecord
	}
	if sale.TotalAmount.IsNegative() || !domain.HasMoneyPrecision(sale.TotalAmount) {
		return fmt.Errorf("%w: sale total %s", domain.ErrInvalidAmount, sale.TotalAmount.String())
	}
	if sale.Tender != nil {
		if err := sale.Tender.Validate(); err != nil {
			return err
		}
	}
	return nil
}
