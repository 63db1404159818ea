package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Actor struct {
	Username string
	Role     string
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

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type SaleItem struct {
	SKU       string           `json:"sku"`
	Name      string           `json:"name"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
}

// SaleRecord is a completed sale as produced by the sales component.
// Tender is nil for legacy records that carry no currency breakdown; such a
// sale is unclassified and is never assigned to a default currency.
type SaleRecord struct {
	ID             string           `json:"id"`
	StoreID        string           `json:"store_id"`
	CashierID      string           `json:"cashier_id"`
	CreatedAt      time.Time        `json:"created_at"`
	TotalAmount    decimal.Decimal  `json:"total_amount"`
	Tender         *MoneyAmount     `json:"tender,omitempty"`
	CostTotal      *decimal.Decimal `json:"cost_total,omitempty"`
	Items          []SaleItem       `json:"items"`
	Status         string           `json:"status"`
	RefundedAmount decimal.Decimal  `json:"refunded_amount"`
}

func (s SaleRecord) IsUnclassified() bool {
	return s.Tender == nil
}

type RefundEntry struct {
	SaleID         string          `json:"sale_id"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	Reason         string          `json:"reason"`
	Timestamp      time.Time       `json:"timestamp"`
}

// RefundLedgerSnapshot is the unit persisted to the key-value store.
type RefundLedgerSnapshot struct {
	Version   int                    `json:"version"`
	UpdatedAt time.Time              `json:"updated_at"`
	Entries   map[string]RefundEntry `json:"entries"`
}

type RefundStats struct {
	TotalRefunded decimal.Decimal            `json:"total_refunded"`
	RefundCount   int                        `json:"refund_count"`
	ByDate        map[string]decimal.Decimal `json:"by_date"`
	BySale        map[string]decimal.Decimal `json:"by_sale"`
	SkippedCount  int                        `json:"skipped_count"`
}

type RefundRequest struct {
	SaleID string          `json:"sale_id"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type CashierCount struct {
	CashierID string      `json:"cashier_id"`
	StoreID   string      `json:"store_id"`
	Date      string      `json:"date"`
	Counted   MoneyAmount `json:"counted"`
	Notes     string      `json:"notes"`
	Status    string      `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type CountRequest struct {
	CashierID string       `json:"cashier_id"`
	Counted   *MoneyAmount `json:"counted"`
	Notes     string       `json:"notes"`
	Draft     bool         `json:"draft"`
}

type Drawer struct {
	StoreID      string      `json:"store_id"`
	CashierID    string      `json:"cashier_id"`
	OpeningFloat MoneyAmount `json:"opening_float"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type StaffDeduction struct {
	ID          string          `json:"id"`
	StoreID     string          `json:"store_id"`
	CashierID   string          `json:"cashier_id"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

type DrawerExpectation struct {
	CashierID                string          `json:"cashier_id"`
	OpeningFloat             MoneyAmount     `json:"opening_float"`
	Expected                 MoneyAmount     `json:"expected"`
	Deductions               decimal.Decimal `json:"deductions_usd"`
	DeductionExceedsExpected bool            `json:"deduction_exceeds_expected"`
	Unclassified             decimal.Decimal `json:"unclassified"`
	UnclassifiedSaleIDs      []string        `json:"unclassified_sale_ids,omitempty"`
	RefundedSales            int             `json:"refunded_sales"`
	SalesCount               int             `json:"sales_count"`
}

type VarianceResult struct {
	CashierID        string          `json:"cashier_id"`
	Expected         MoneyAmount     `json:"expected"`
	Actual           MoneyAmount     `json:"actual"`
	PerCurrency      Delta           `json:"per_currency"`
	ExpectedTotal    decimal.Decimal `json:"expected_total"`
	ActualTotal      decimal.Decimal `json:"actual_total"`
	Variance         decimal.Decimal `json:"variance"`
	Basis            string          `json:"basis"`
	Status           string          `json:"status"`
	CurrencyMismatch bool            `json:"currency_mismatch"`
	Counted          bool            `json:"counted"`
}

type DayVariance struct {
	TotalExpected      decimal.Decimal `json:"total_expected"`
	TotalCounted       decimal.Decimal `json:"total_counted"`
	TotalVariance      decimal.Decimal `json:"total_variance"`
	VerifiedCount      int             `json:"verified_count"`
	TotalCashiers      int             `json:"total_cashiers"`
	Balanced           int             `json:"balanced"`
	Short              int             `json:"short"`
	Over               int             `json:"over"`
	Pending            int             `json:"pending"`
	ExpectedByCurrency MoneyAmount     `json:"expected_by_currency"`
	CountedByCurrency  MoneyAmount     `json:"counted_by_currency"`
	Basis              string          `json:"basis"`
}

type DayVarianceReport struct {
	StoreID  string           `json:"store_id"`
	Date     string           `json:"date"`
	Summary  DayVariance      `json:"summary"`
	Cashiers []VarianceResult `json:"cashiers"`
}

type VerificationProgress struct {
	Verified int     `json:"verified"`
	Total    int     `json:"total"`
	Ratio    float64 `json:"ratio"`
}

type DeleteResult struct {
	DeletedCount int `json:"deleted_count"`
	DrawersReset int `json:"drawers_reset"`
}

type ReconciliationSession struct {
	StoreID          string     `json:"store_id"`
	Day              string     `json:"day"`
	State            string     `json:"state"`
	Notes            string     `json:"notes"`
	VerifiedCashiers int        `json:"verified_cashiers"`
	DeletedSales     int        `json:"deleted_sales"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
}

type FinalizeRequest struct {
	Notes      string `json:"notes"`
	ManagerPIN string `json:"manager_pin"`
}

type FinalizeResult struct {
	StoreID         string    `json:"store_id"`
	Day             string    `json:"day"`
	State           string    `json:"state"`
	PersistedCounts int       `json:"persisted_counts"`
	DeletedCount    int       `json:"deleted_count"`
	DrawersReset    int       `json:"drawers_reset"`
	ClosedAt        time.Time `json:"closed_at"`
	Warnings        []string  `json:"warnings,omitempty"`
	ShutdownError   string    `json:"shutdown_error,omitempty"`
}

type MarginSummary struct {
	TotalCost        decimal.Decimal `json:"total_cost"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalMargin      decimal.Decimal `json:"total_margin"`
	MarginPercentage decimal.Decimal `json:"margin_percentage"`
	TotalRefunded    decimal.Decimal `json:"total_refunded"`
	SalesCount       int             `json:"sales_count"`
	RefundedCount    int             `json:"refunded_count"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	SaleStatusCompleted = "completed"
	SaleStatusRefunded  = "refunded"
)

const (
	CountStatusInProgress = "in_progress"
	CountStatusCompleted  = "completed"
)

const (
	VarianceStatusPending  = "pending"
	VarianceStatusBalanced = "balanced"
	VarianceStatusShort    = "short"
	VarianceStatusOver     = "over"
)

const (
	DayStateOpen       = "open"
	DayStateVerifying  = "verifying"
	DayStateFinalizing = "finalizing"
	DayStateClosed     = "closed"
)

// DayLayout is the key format of a business day.
const DayLayout = "2006-01-02"

type StaffDeductionRequest struct {
	CashierID   string          `json:"cashier_id"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
	Description string          `json:"description"`
}

type DrawerFloatRequest struct {
	OpeningFloat MoneyAmount `json:"opening_float"`
}

// DayStatus is the externally visible state of the current business day.
type DayStatus struct {
	StoreID    string               `json:"store_id"`
	Day        string               `json:"day"`
	State      string               `json:"state"`
	InProgress bool                 `json:"in_progress"`
	Progress   VerificationProgress `json:"progress"`
	Complete   bool                 `json:"complete"`
}

type AbortResponse struct {
	Aborted bool      `json:"aborted"`
	Status  DayStatus `json:"status"`
}
