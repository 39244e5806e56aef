// Package checkout runs a sale from the first scanned item to a completed
// cash or card payment. The cart sent with a payment is re-priced from the
// catalog; client-side totals are never trusted.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tillpoint/backend/internal/cache"
	"tillpoint/backend/internal/cart"
	"tillpoint/backend/internal/catalog"
	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/gateway"
	"tillpoint/backend/internal/metrics"
	"tillpoint/backend/internal/money"
	"tillpoint/backend/internal/restriction"
	"tillpoint/backend/internal/service"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

type Config struct {
	Currency      string
	FeeRate       decimal.Decimal
	FeeFixedCents int64
	SessionTTL    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Currency:      "usd",
		FeeRate:       decimal.RequireFromString("0.002"),
		FeeFixedCents: 5,
		SessionTTL:    2 * time.Hour,
	}
}

type Orchestrator struct {
	repo     store.Ledger
	catalog  *catalog.Lookup
	gateway  gateway.Gateway
	sessions cache.SessionStore
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time
}

func New(repo store.Ledger, lookup *catalog.Lookup, gw gateway.Gateway, sessions cache.SessionStore, m *metrics.Metrics, cfg Config) *Orchestrator {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	return &Orchestrator{
		repo:     repo,
		catalog:  lookup,
		gateway:  gw,
		sessions: sessions,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
}

// PaymentStatusError reports a card payment the gateway has not settled.
type PaymentStatusError struct {
	Status string
}

func (e *PaymentStatusError) Error() string {
	return fmt.Sprintf("%v: gateway status %s", domain.ErrPaymentNotCompleted, e.Status)
}

func (e *PaymentStatusError) Unwrap() error {
	return domain.ErrPaymentNotCompleted
}

func (o *Orchestrator) StartCheckout(ctx context.Context) (domain.StartCheckoutResponse, error) {
	actor, err := service.RequireActor(ctx)
	if err != nil {
		return domain.StartCheckoutResponse{}, err
	}

	now := o.now().UTC()
	session := domain.CheckoutSession{
		ID:          xid.New("chk"),
		BusinessID:  actor.BusinessID,
		CashierID:   actor.UserID,
		CashierName: service.DisplayName(actor),
		State:       string(StateStarted),
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if o.sessions != nil {
		if err := o.sessions.SaveSession(ctx, session, o.cfg.SessionTTL); err != nil {
			log.Printf("[checkout] WARN session write failed session=%s: %v", session.ID, err)
		}
	}

	return domain.StartCheckoutResponse{
		SessionID:  session.ID,
		Cashier:    session.CashierName,
		BusinessID: session.BusinessID,
		StartedAt:  now,
	}, nil
}

func (o *Orchestrator) AddItem(ctx context.Context, req domain.AddItemRequest) (domain.PricedItem, error) {
	actor, err := service.RequireActor(ctx)
	if err != nil {
		return domain.PricedItem{}, err
	}
	business, err := o.catalog.Business(ctx, actor.BusinessID)
	if err != nil {
		return domain.PricedItem{}, err
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	line, dept, err := o.resolveLine(ctx, *business, req.UPC, req.DepartmentID, req.PriceCents)
	if err != nil {
		return domain.PricedItem{}, err
	}

	c := cart.New()
	if err := c.Add(line, quantity); err != nil {
		return domain.PricedItem{}, err
	}
	item := c.Items()[0]

	o.advance(ctx, req.SessionID, StateItemsAdded)

	return domain.PricedItem{
		ProductID:         item.ProductID,
		Name:              item.Name,
		DepartmentID:      item.DepartmentID,
		PriceCents:        item.UnitPriceCents,
		Quantity:          item.Quantity,
		Taxable:           item.Taxable,
		AgeRestriction:    dept.AgeRestriction,
		TimeRestriction:   dept.TimeRestriction,
		LineSubtotalCents: item.SubtotalCents(),
		TaxCents:          item.TaxCents(),
		TotalCents:        item.TotalCents(),
		RequiresAgeCheck:  c.RequiresAgeVerification(),
	}, nil
}

// VerifyAge records the cashier's attestation. It is not persisted: the
// payment request carries the verification for its own cart.
func (o *Orchestrator) VerifyAge(ctx context.Context, req domain.VerifyAgeRequest) (domain.VerifyAgeResponse, error) {
	if _, err := service.RequireActor(ctx); err != nil {
		return domain.VerifyAgeResponse{}, err
	}
	if !req.Confirmed {
		return domain.VerifyAgeResponse{}, domain.ErrAgeVerificationRequired
	}

	o.advance(ctx, req.SessionID, StateAgeVerified)
	return domain.VerifyAgeResponse{
		Verified:    true,
		CustomerAge: req.CustomerAge,
		VerifiedAt:  o.now().UTC(),
	}, nil
}

func (o *Orchestrator) ProcessPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	actor, err := service.RequireActor(ctx)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	if len(req.Items) == 0 {
		return domain.PaymentResponse{}, fmt.Errorf("%w: cart is empty", domain.ErrValidation)
	}
	if req.PaymentMethod != domain.PaymentMethodCash && req.PaymentMethod != domain.PaymentMethodCard {
		return domain.PaymentResponse{}, fmt.Errorf("%w: unsupported payment method %q", domain.ErrValidation, req.PaymentMethod)
	}

	business, err := o.catalog.Business(ctx, actor.BusinessID)
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	c := cart.New()
	for _, entry := range req.Items {
		line, _, err := o.resolveLine(ctx, *business, entry.UPC, entry.DepartmentID, entry.PriceCents)
		if err != nil {
			return domain.PaymentResponse{}, err
		}
		if err := c.Add(line, entry.Quantity); err != nil {
			return domain.PaymentResponse{}, err
		}
	}

	if req.CustomerAgeVerified {
		age := req.VerifiedAge
		if age == 0 {
			// Attestation without a recorded age covers the strictest item.
			age, _ = c.HighestAgeRequirement()
		}
		c.VerifyAge(age)
	}
	if !c.AgeGateSatisfied() {
		required, _ := c.HighestAgeRequirement()
		return domain.PaymentResponse{}, fmt.Errorf("%w: customer must be %d or older", domain.ErrAgeVerificationRequired, required)
	}

	if req.PaymentMethod == domain.PaymentMethodCard && !business.CanAcceptCards() {
		return domain.PaymentResponse{}, domain.ErrPaymentNotConfigured
	}
	if req.PaymentMethod == domain.PaymentMethodCash && req.CashReceivedCents < c.TotalCents() {
		o.metrics.ObservePayment(string(domain.PaymentMethodCash), "insufficient")
		return domain.PaymentResponse{}, fmt.Errorf("%w: received %s, total %s", domain.ErrInsufficientPayment, money.Format(req.CashReceivedCents), money.Format(c.TotalCents()))
	}
	if req.PaymentMethod == domain.PaymentMethodCard && c.TotalCents() <= 0 {
		return domain.PaymentResponse{}, domain.ErrInvalidAmount
	}

	ageState := StateNoAgeNeeded
	if c.RequiresAgeVerification() {
		ageState = StateAgeVerified
	}

	now := o.now().UTC()
	tx := domain.Transaction{
		ID:            xid.New("txn"),
		BusinessID:    business.ID,
		CashierID:     actor.UserID,
		CashierName:   service.DisplayName(actor),
		Type:          domain.TxTypeSale,
		PaymentMethod: req.PaymentMethod,
		SubtotalCents: c.SubtotalCents(),
		TaxCents:      c.TaxCents(),
		TotalCents:    c.TotalCents(),
		NetCents:      c.TotalCents(),
		Status:        domain.TxStatusPending,
		AgeVerified:   c.AgeVerified(),
		CreatedAt:     now,
		Items:         transactionItems(c.Items()),
	}
	if req.PaymentMethod == domain.PaymentMethodCash {
		tx.Status = domain.TxStatusCompleted
		tx.CompletedAt = &now
	}

	created, err := o.repo.CreateTransaction(ctx, tx)
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	if req.PaymentMethod == domain.PaymentMethodCash {
		state := o.advance(ctx, req.SessionID, StateItemsAdded, ageState, StatePaymentSelected, StateCashCompleted)
		o.metrics.ObservePayment(string(domain.PaymentMethodCash), "completed")
		log.Printf("[checkout] cash sale completed tx=%s total=%d cashier=%s", created.ID, created.TotalCents, actor.UserID)
		return domain.PaymentResponse{
			Transaction: *created,
			Payment: domain.PaymentResult{
				Method:        domain.PaymentMethodCash,
				Status:        string(domain.TxStatusCompleted),
				ReceivedCents: req.CashReceivedCents,
				ChangeCents:   req.CashReceivedCents - created.TotalCents,
			},
			State: string(state),
		}, nil
	}

	return o.startCardPayment(ctx, req.SessionID, *business, created, ageState)
}

func (o *Orchestrator) startCardPayment(ctx context.Context, sessionID string, business domain.Business, tx *domain.Transaction, ageState State) (domain.PaymentResponse, error) {
	fee, err := money.ProcessingFee(tx.TotalCents, o.cfg.FeeRate, o.cfg.FeeFixedCents)
	if err != nil {
		o.rollbackSale(ctx, tx.ID)
		return domain.PaymentResponse{}, err
	}
	if fee > tx.TotalCents {
		fee = tx.TotalCents
	}
	net := tx.TotalCents - fee

	intent, err := o.gateway.CreatePaymentIntent(ctx, gateway.PaymentIntentRequest{
		AmountCents:        tx.TotalCents,
		Currency:           o.cfg.Currency,
		FeeCents:           fee,
		DestinationAccount: business.PaymentAccountID,
		IdempotencyKey:     tx.ID,
		Metadata: map[string]string{
			"transaction_id": tx.ID,
			"business_id":    business.ID,
			"cashier_id":     tx.CashierID,
		},
	})
	if err != nil {
		o.rollbackSale(ctx, tx.ID)
		o.advance(ctx, sessionID, StateFailed)
		o.metrics.ObservePayment(string(domain.PaymentMethodCard), "gateway_error")
		if !errors.Is(err, domain.ErrPaymentGateway) {
			err = fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
		}
		return domain.PaymentResponse{}, err
	}

	if err := o.repo.AttachPaymentIntent(ctx, tx.ID, intent.ID, fee, net); err != nil {
		log.Printf("[checkout] ERROR attach intent=%s tx=%s: %v", intent.ID, tx.ID, err)
		o.rollbackSale(ctx, tx.ID)
		o.advance(ctx, sessionID, StateFailed)
		return domain.PaymentResponse{}, err
	}
	tx.PaymentRef = intent.ID
	tx.ProcessingFeeCents = fee
	tx.NetCents = net

	state := o.advance(ctx, sessionID, StateItemsAdded, ageState, StatePaymentSelected, StateCardPendingConfirmation)
	o.metrics.ObservePayment(string(domain.PaymentMethodCard), "pending")
	log.Printf("[checkout] card intent created tx=%s intent=%s total=%d fee=%d", tx.ID, intent.ID, tx.TotalCents, fee)

	return domain.PaymentResponse{
		Transaction: *tx,
		Payment: domain.PaymentResult{
			Method:          domain.PaymentMethodCard,
			Status:          intent.Status,
			PaymentIntentID: intent.ID,
			ClientSecret:    intent.ClientSecret,
		},
		State: string(state),
	}, nil
}

// ConfirmCardPayment completes a pending card sale once the gateway reports
// the intent succeeded. Any other gateway status leaves the sale untouched.
func (o *Orchestrator) ConfirmCardPayment(ctx context.Context, req domain.ConfirmCardPaymentRequest) (domain.ConfirmCardPaymentResponse, error) {
	actor, err := service.RequireActor(ctx)
	if err != nil {
		return domain.ConfirmCardPaymentResponse{}, err
	}

	tx, err := o.repo.FindTransaction(ctx, actor.BusinessID, req.TransactionID)
	if err != nil {
		return domain.ConfirmCardPaymentResponse{}, err
	}
	if tx.PaymentRef == "" || tx.PaymentRef != req.PaymentIntentID {
		return domain.ConfirmCardPaymentResponse{}, domain.ErrTransactionNotFound
	}

	switch tx.Status {
	case domain.TxStatusCompleted:
		return o.confirmed(ctx, req.SessionID, tx), nil
	case domain.TxStatusFailed:
		return domain.ConfirmCardPaymentResponse{}, &PaymentStatusError{Status: string(domain.TxStatusFailed)}
	}

	intent, err := o.gateway.RetrievePaymentIntent(ctx, tx.PaymentRef)
	if err != nil {
		if !errors.Is(err, domain.ErrPaymentGateway) {
			err = fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
		}
		return domain.ConfirmCardPaymentResponse{}, err
	}
	if intent.Status != gateway.StatusSucceeded {
		return domain.ConfirmCardPaymentResponse{}, &PaymentStatusError{Status: intent.Status}
	}

	completed, err := o.repo.CompleteTransaction(ctx, tx.ID, intent.ChargeRef, o.now().UTC())
	if errors.Is(err, store.ErrConflict) {
		// The webhook may have completed it first.
		current, findErr := o.repo.FindTransaction(ctx, actor.BusinessID, tx.ID)
		if findErr == nil && current.Status == domain.TxStatusCompleted {
			return o.confirmed(ctx, req.SessionID, current), nil
		}
		return domain.ConfirmCardPaymentResponse{}, err
	}
	if err != nil {
		return domain.ConfirmCardPaymentResponse{}, err
	}

	o.metrics.ObservePayment(string(domain.PaymentMethodCard), "completed")
	log.Printf("[checkout] card sale completed tx=%s charge=%s", completed.ID, completed.ChargeRef)
	return o.confirmed(ctx, req.SessionID, completed), nil
}

func (o *Orchestrator) confirmed(ctx context.Context, sessionID string, tx *domain.Transaction) domain.ConfirmCardPaymentResponse {
	state := o.advance(ctx, sessionID, StateCardCompleted)
	return domain.ConfirmCardPaymentResponse{
		Success:       true,
		TransactionID: tx.ID,
		Status:        string(tx.Status),
		State:         string(state),
	}
}

// resolveLine prices one entry: a catalog product by UPC, or a manual
// department entry at the given price. The department's time restriction is
// checked against the business's local clock.
func (o *Orchestrator) resolveLine(ctx context.Context, business domain.Business, upc string, departmentID string, priceCents int64) (cart.Line, *domain.Department, error) {
	upc = strings.TrimSpace(upc)
	departmentID = strings.TrimSpace(departmentID)

	var line cart.Line
	switch {
	case upc != "":
		product, err := o.catalog.ProductByUPC(ctx, business.ID, upc)
		if err != nil {
			return cart.Line{}, nil, err
		}
		if !product.Active {
			return cart.Line{}, nil, fmt.Errorf("%w: %s is not for sale", domain.ErrProductNotFound, upc)
		}
		line = cart.Line{
			ProductID:      product.ID,
			Name:           product.Name,
			DepartmentID:   product.DepartmentID,
			UnitPriceCents: product.PriceCents,
		}
	case departmentID != "":
		if priceCents <= 0 {
			return cart.Line{}, nil, domain.ErrInvalidAmount
		}
		line = cart.Line{
			DepartmentID:   departmentID,
			UnitPriceCents: priceCents,
		}
	default:
		return cart.Line{}, nil, fmt.Errorf("%w: upc or department_id is required", domain.ErrValidation)
	}

	dept, err := o.catalog.Department(ctx, business.ID, line.DepartmentID)
	if err != nil {
		return cart.Line{}, nil, err
	}
	if line.Name == "" {
		line.Name = dept.Name
	}

	local := restriction.LocalTime(o.now(), business.Timezone)
	if !restriction.SaleAllowedAt(dept.TimeRestriction, local) {
		return cart.Line{}, nil, fmt.Errorf("%w: %s cannot be sold between %s", domain.ErrTimeRestricted, dept.Name, restriction.Window(*dept.TimeRestriction))
	}

	line.Taxable = dept.Taxable
	line.TaxRate = business.TaxRate
	if minAge, ok := restriction.AgeRestriction(*dept); ok {
		line.AgeRestriction = &minAge
	}
	return line, dept, nil
}

func (o *Orchestrator) rollbackSale(ctx context.Context, id string) {
	if err := o.repo.DeleteTransaction(context.WithoutCancel(ctx), id); err != nil {
		log.Printf("[checkout] ERROR rollback of tx=%s failed: %v", id, err)
	}
}

func transactionItems(items []cart.Item) []domain.TransactionItem {
	out := make([]domain.TransactionItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.TransactionItem{
			ProductID:      item.ProductID,
			ProductName:    item.Name,
			DepartmentID:   item.DepartmentID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TaxCents:       item.TaxCents(),
			TotalCents:     item.TotalCents(),
		})
	}
	return out
}
