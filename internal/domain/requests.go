package domain

import "time"

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	BusinessID  string `json:"business_id"`
	ExpiresAt   string `json:"expires_at"`
}

type StartCheckoutResponse struct {
	SessionID  string    `json:"session_id"`
	Cashier    string    `json:"cashier"`
	BusinessID string    `json:"business_id"`
	StartedAt  time.Time `json:"started_at"`
}

// AddItemRequest identifies an item either by UPC or, for items not in the
// catalog, by department and price.
type AddItemRequest struct {
	SessionID    string `json:"session_id,omitempty"`
	UPC          string `json:"upc,omitempty" validate:"omitempty,min=8,max=14"`
	DepartmentID string `json:"department_id,omitempty"`
	PriceCents   int64  `json:"price_cents,omitempty" validate:"gte=0"`
	Quantity     int    `json:"quantity,omitempty" validate:"gte=0"`
}

type PricedItem struct {
	ProductID         string           `json:"product_id,omitempty"`
	Name              string           `json:"name"`
	DepartmentID      string           `json:"department_id"`
	PriceCents        int64            `json:"price_cents"`
	Quantity          int              `json:"quantity"`
	Taxable           bool             `json:"taxable"`
	AgeRestriction    *int             `json:"age_restriction,omitempty"`
	TimeRestriction   *TimeRestriction `json:"time_restriction,omitempty"`
	LineSubtotalCents int64            `json:"line_subtotal_cents"`
	TaxCents          int64            `json:"tax_cents"`
	TotalCents        int64            `json:"total_cents"`
	RequiresAgeCheck  bool             `json:"requires_age_check"`
}

type VerifyAgeRequest struct {
	SessionID   string `json:"session_id,omitempty"`
	Confirmed   bool   `json:"confirmed"`
	CustomerAge int    `json:"customer_age" validate:"gte=0,lte=120"`
}

type VerifyAgeResponse struct {
	Verified    bool      `json:"verified"`
	CustomerAge int       `json:"customer_age"`
	VerifiedAt  time.Time `json:"verified_at"`
}

type PaymentLine struct {
	UPC          string `json:"upc,omitempty" validate:"omitempty,min=8,max=14"`
	DepartmentID string `json:"department_id,omitempty"`
	PriceCents   int64  `json:"price_cents,omitempty" validate:"gte=0"`
	Quantity     int    `json:"quantity" validate:"gte=1"`
}

type PaymentRequest struct {
	SessionID           string        `json:"session_id,omitempty"`
	Items               []PaymentLine `json:"items" validate:"required,min=1,dive"`
	PaymentMethod       PaymentMethod `json:"payment_method" validate:"required,oneof=cash card"`
	CashReceivedCents   int64         `json:"cash_received_cents" validate:"gte=0"`
	CustomerAgeVerified bool          `json:"customer_age_verified"`
	VerifiedAge         int           `json:"verified_age" validate:"gte=0,lte=120"`
}

type PaymentResult struct {
	Method          PaymentMethod `json:"method"`
	Status          string        `json:"status"`
	ReceivedCents   int64         `json:"received_cents,omitempty"`
	ChangeCents     int64         `json:"change_cents,omitempty"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	ClientSecret    string        `json:"client_secret,omitempty"`
}

type PaymentResponse struct {
	Transaction Transaction   `json:"transaction"`
	Payment     PaymentResult `json:"payment"`
	State       string        `json:"state"`
}

type ConfirmCardPaymentRequest struct {
	SessionID       string `json:"session_id,omitempty"`
	TransactionID   string `json:"transaction_id" validate:"required"`
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

type ConfirmCardPaymentResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	State         string `json:"state"`
}

type RefundItemRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

type RefundRequest struct {
	TransactionID string              `json:"-"`
	Items         []RefundItemRequest `json:"items,omitempty" validate:"omitempty,dive"`
	Reason        string              `json:"reason,omitempty" validate:"max=200"`
}

type RefundResponse struct {
	RefundTransaction Transaction `json:"refund_transaction"`
	RefundCents       int64       `json:"refund_cents"`
}

type VoidRequest struct {
	TransactionID string `json:"-"`
	Reason        string `json:"reason,omitempty" validate:"max=200"`
}

type VoidResponse struct {
	TransactionID string    `json:"transaction_id"`
	VoidedAt      time.Time `json:"voided_at"`
	Reason        string    `json:"reason"`
}

type StartDayRequest struct {
	CashCounts CashCounts `json:"cash_counts" validate:"required"`
}

type StartDayResponse struct {
	Shift             Shift `json:"shift"`
	StartingCashCents int64 `json:"starting_cash_cents"`
}

type EndDayRequest struct {
	CashCounts       CashCounts `json:"cash_counts" validate:"required"`
	SkipEmailSummary bool       `json:"skip_email_summary"`
}

type ReconciliationSummary struct {
	ExpectedCashCents int64 `json:"expected_cash_cents"`
	ActualCashCents   int64 `json:"actual_cash_cents"`
	DifferenceCents   int64 `json:"difference_cents"`
	IsOver            bool  `json:"is_over"`
	IsShort           bool  `json:"is_short"`
}

type EndDayResponse struct {
	Shift   Shift                 `json:"shift"`
	Summary ReconciliationSummary `json:"summary"`
}

type CashMovementRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Note        string `json:"note,omitempty" validate:"max=200"`
}

type CashMovementResponse struct {
	Transaction Transaction `json:"transaction"`
}

type TransactionListResponse struct {
	Transactions []Transaction `json:"transactions"`
	Total        int           `json:"total"`
	Limit        int           `json:"limit"`
	Offset       int           `json:"offset"`
}

type ReceiptRefund struct {
	AmountCents int64      `json:"amount_cents"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
}

type Receipt struct {
	BusinessName    string            `json:"business_name"`
	BusinessAddress string            `json:"business_address,omitempty"`
	TaxRate         string            `json:"tax_rate"`
	TransactionID   string            `json:"transaction_id"`
	Date            time.Time         `json:"date"`
	Cashier         string            `json:"cashier"`
	Type            TxType            `json:"type"`
	PaymentMethod   PaymentMethod     `json:"payment_method,omitempty"`
	Items           []TransactionItem `json:"items"`
	SubtotalCents   int64             `json:"subtotal_cents"`
	TaxCents        int64             `json:"tax_cents"`
	TotalCents      int64             `json:"total_cents"`
	Refund          *ReceiptRefund    `json:"refund,omitempty"`
	Voided          bool              `json:"voided"`
}
