package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/ledger"
)

const signatureHeader = "Stripe-Signature"

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStartCheckout(w http.ResponseWriter, r *http.Request) {
	resp, err := a.services.Checkout.StartCheckout(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req domain.AddItemRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	item, err := a.services.Checkout.AddItem(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleVerifyAge(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyAgeRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	resp, err := a.services.Checkout.VerifyAge(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	resp, err := a.services.Checkout.ProcessPayment(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleConfirmCardPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.ConfirmCardPaymentRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	resp, err := a.services.Checkout.ConfirmCardPayment(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTransactionFilter(r.URL.Query())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp, err := a.services.Ledger.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.services.Ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := a.services.Ledger.Receipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req domain.RefundRequest
	if err := a.decodeOptional(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	req.TransactionID = chi.URLParam(r, "id")

	resp, err := a.services.Ledger.Refund(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleVoid(w http.ResponseWriter, r *http.Request) {
	var req domain.VoidRequest
	if err := a.decodeOptional(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	req.TransactionID = chi.URLParam(r, "id")

	resp, err := a.services.Ledger.Void(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStartDay(w http.ResponseWriter, r *http.Request) {
	var req domain.StartDayRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	resp, err := a.services.Shift.StartDay(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleEndDay(w http.ResponseWriter, r *http.Request) {
	var req domain.EndDayRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	resp, err := a.services.Shift.EndDay(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePayIn(w http.ResponseWriter, r *http.Request) {
	a.handleCashMovement(w, r, a.services.Shift.PayIn)
}

func (a *API) handlePayOut(w http.ResponseWriter, r *http.Request) {
	a.handleCashMovement(w, r, a.services.Shift.PayOut)
}

func (a *API) handleCashMovement(w http.ResponseWriter, r *http.Request, move func(ctx context.Context, req domain.CashMovementRequest) (domain.CashMovementResponse, error)) {
	var req domain.CashMovementRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	resp, err := move(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleActiveShift(w http.ResponseWriter, r *http.Request) {
	shift, err := a.services.Shift.ActiveShift(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

// handlePaymentWebhook is unauthenticated; the platform signature stands in
// for the bearer token.
func (a *API) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if a.services.Webhooks == nil {
		writeError(w, http.StatusNotFound, errors.New("webhooks not configured"))
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	event, err := a.services.Webhooks.ParseWebhook(payload, r.Header.Get(signatureHeader))
	if err != nil {
		log.Printf("[webhook] rejected payload: %v", err)
		writeError(w, http.StatusBadRequest, errors.New("invalid webhook signature or payload"))
		return
	}

	if err := a.services.Checkout.ApplyPaymentEvent(r.Context(), *event); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

func parseTransactionFilter(q url.Values) (domain.TransactionFilter, error) {
	filter := domain.TransactionFilter{
		Type:          domain.TxType(strings.TrimSpace(q.Get("type"))),
		PaymentMethod: domain.PaymentMethod(strings.TrimSpace(q.Get("payment_method"))),
		CashierID:     strings.TrimSpace(q.Get("cashier_id")),
		Limit:         parsePositiveLimit(q.Get("limit"), ledger.DefaultListLimit, ledger.MaxListLimit),
	}

	switch filter.Type {
	case "", domain.TxTypeSale, domain.TxTypeRefund, domain.TxTypeVoid, domain.TxTypePayIn, domain.TxTypePayOut:
	default:
		return domain.TransactionFilter{}, fmt.Errorf("%w: unknown transaction type %q", domain.ErrValidation, filter.Type)
	}
	switch filter.PaymentMethod {
	case "", domain.PaymentMethodCash, domain.PaymentMethodCard:
	default:
		return domain.TransactionFilter{}, fmt.Errorf("%w: unknown payment method %q", domain.ErrValidation, filter.PaymentMethod)
	}

	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return domain.TransactionFilter{}, fmt.Errorf("%w: offset must be a non-negative integer", domain.ErrValidation)
		}
		filter.Offset = offset
	}

	from, err := parseTimeParam(q.Get("from"), false)
	if err != nil {
		return domain.TransactionFilter{}, err
	}
	to, err := parseTimeParam(q.Get("to"), true)
	if err != nil {
		return domain.TransactionFilter{}, err
	}
	filter.From, filter.To = from, to
	return filter, nil
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates. Upper bounds are
// exclusive, so a plain date used as one is moved to the next midnight.
func parseTimeParam(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		ts = ts.UTC()
		return &ts, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", domain.ErrValidation, raw)
	}
	if endOfDay {
		day = day.AddDate(0, 0, 1)
	}
	return &day, nil
}
