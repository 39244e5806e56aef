package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TxType string

const (
	TxTypeSale   TxType = "sale"
	TxTypeRefund TxType = "refund"
	TxTypeVoid   TxType = "void"
	TxTypePayIn  TxType = "pay_in"
	TxTypePayOut TxType = "pay_out"
)

type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusCompleted TxStatus = "completed"
	TxStatusFailed    TxStatus = "failed"
)

type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodCard PaymentMethod = "card"
)

const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

// TimeRestriction is a half-open [StartHour, EndHour) window, in the
// business's local time, during which a department may not be sold.
// StartHour > EndHour wraps midnight.
type TimeRestriction struct {
	StartHour int `json:"start"`
	EndHour   int `json:"end"`
}

type Business struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Address           string          `json:"address,omitempty"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
	Timezone          string          `json:"timezone"`
	PaymentAccountID  string          `json:"payment_account_id,omitempty"`
	PaymentsEnabled   bool            `json:"payments_enabled"`
	NotificationEmail string          `json:"notification_email,omitempty"`
	LastDayClosedAt   *time.Time      `json:"last_day_closed_at,omitempty"`
	DailySummarySent  bool            `json:"daily_summary_sent"`
	LastSummarySentAt *time.Time      `json:"last_summary_sent_at,omitempty"`
}

// CanAcceptCards reports whether the business finished payment platform onboarding.
func (b Business) CanAcceptCards() bool {
	return b.PaymentsEnabled && b.PaymentAccountID != ""
}

type Department struct {
	ID              string           `json:"id"`
	BusinessID      string           `json:"business_id"`
	Name            string           `json:"name"`
	Taxable         bool             `json:"taxable"`
	AgeRestriction  *int             `json:"age_restriction,omitempty"`
	TimeRestriction *TimeRestriction `json:"time_restriction,omitempty"`
}

type Product struct {
	ID           string `json:"id"`
	BusinessID   string `json:"business_id"`
	UPC          string `json:"upc"`
	Name         string `json:"name"`
	DepartmentID string `json:"department_id"`
	PriceCents   int64  `json:"price_cents"`
	Active       bool   `json:"active"`
}

type Transaction struct {
	ID                    string            `json:"id"`
	BusinessID            string            `json:"business_id"`
	CashierID             string            `json:"cashier_id"`
	CashierName           string            `json:"cashier_name"`
	Type                  TxType            `json:"type"`
	PaymentMethod         PaymentMethod     `json:"payment_method,omitempty"`
	SubtotalCents         int64             `json:"subtotal_cents"`
	TaxCents              int64             `json:"tax_cents"`
	TotalCents            int64             `json:"total_cents"`
	ProcessingFeeCents    int64             `json:"processing_fee_cents"`
	NetCents              int64             `json:"net_cents"`
	Status                TxStatus          `json:"status"`
	PaymentRef            string            `json:"payment_ref,omitempty"`
	ChargeRef             string            `json:"charge_ref,omitempty"`
	RefundRef             string            `json:"refund_ref,omitempty"`
	OriginalTransactionID string            `json:"original_transaction_id,omitempty"`
	Refunded              bool              `json:"refunded"`
	RefundedCents         int64             `json:"refunded_cents"`
	RefundedAt            *time.Time        `json:"refunded_at,omitempty"`
	Voided                bool              `json:"voided"`
	VoidedAt              *time.Time        `json:"voided_at,omitempty"`
	VoidedBy              string            `json:"voided_by,omitempty"`
	VoidReason            string            `json:"void_reason,omitempty"`
	AgeVerified           bool              `json:"age_verified"`
	Note                  string            `json:"note,omitempty"`
	ErrorMessage          string            `json:"error_message,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	CompletedAt           *time.Time        `json:"completed_at,omitempty"`
	Items                 []TransactionItem `json:"items"`
}

type TransactionItem struct {
	ID             string `json:"id"`
	TransactionID  string `json:"transaction_id"`
	ProductID      string `json:"product_id,omitempty"`
	ProductName    string `json:"product_name"`
	DepartmentID   string `json:"department_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TaxCents       int64  `json:"tax_cents"`
	TotalCents     int64  `json:"total_cents"`
}

// CashCounts maps a denomination name (pennies, nickels, ..., hundreds) to a count.
type CashCounts map[string]int

type Shift struct {
	ID                  string     `json:"id"`
	BusinessID          string     `json:"business_id"`
	CashierID           string     `json:"cashier_id"`
	StartingCashCents   int64      `json:"starting_cash_cents"`
	StartingCounts      CashCounts `json:"starting_cash_counts"`
	StartedAt           time.Time  `json:"started_at"`
	EndingCashCents     int64      `json:"ending_cash_cents"`
	EndingCounts        CashCounts `json:"ending_cash_counts,omitempty"`
	ExpectedCashCents   int64      `json:"expected_cash_cents"`
	CashDifferenceCents int64      `json:"cash_difference_cents"`
	CashSalesCents      int64      `json:"total_cash_sales_cents"`
	CardSalesCents      int64      `json:"total_card_sales_cents"`
	RefundsCents        int64      `json:"total_refunds_cents"`
	PayInsCents         int64      `json:"pay_ins_cents"`
	PayOutsCents        int64      `json:"pay_outs_cents"`
	EndedAt             *time.Time `json:"ended_at,omitempty"`
}

func (s Shift) IsOpen() bool {
	return s.EndedAt == nil
}

type CheckoutSession struct {
	ID          string    `json:"id"`
	BusinessID  string    `json:"business_id"`
	CashierID   string    `json:"cashier_id"`
	CashierName string    `json:"cashier_name"`
	State       string    `json:"state"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// Actor is the authenticated caller attached to a request context.
type Actor struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	BusinessID string `json:"business_id"`
}

type UserAccount struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Password   string    `json:"-"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	BusinessID string    `json:"business_id"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type TransactionFilter struct {
	BusinessID    string
	From          *time.Time
	To            *time.Time
	Type          TxType
	PaymentMethod PaymentMethod
	CashierID     string
	Limit         int
	Offset        int
}

type ProductSales struct {
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	RevenueCents int64  `json:"revenue_cents"`
}

type DailySummary struct {
	BusinessID        string         `json:"business_id"`
	BusinessName      string         `json:"business_name"`
	Date              string         `json:"date"`
	TransactionCount  int            `json:"transaction_count"`
	TotalSalesCents   int64          `json:"total_sales_cents"`
	TotalRefundsCents int64          `json:"total_refunds_cents"`
	NetSalesCents     int64          `json:"net_sales_cents"`
	CashSalesCents    int64          `json:"cash_sales_cents"`
	CardSalesCents    int64          `json:"card_sales_cents"`
	CardFeesCents     int64          `json:"card_fees_cents"`
	NetCardCents      int64          `json:"net_card_cents"`
	AverageSaleCents  int64          `json:"average_sale_cents"`
	TopProducts       []ProductSales `json:"top_products"`
	// HourlySalesCents is indexed by hour of day in the business's time zone.
	HourlySalesCents [24]int64 `json:"hourly_sales_cents"`
}
