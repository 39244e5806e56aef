package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error below wraps exactly one kind so callers can branch
// on either the specific failure or its category.
var (
	ErrValidation      = errors.New("validation error")
	ErrPolicy          = errors.New("policy violation")
	ErrConflict        = errors.New("conflict")
	ErrExternalService = errors.New("external service error")
	ErrNotFound        = errors.New("not found")
)

var (
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	ErrInvalidAmount   = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrInvalidRequest  = fmt.Errorf("%w: invalid request", ErrValidation)

	ErrTimeRestricted          = fmt.Errorf("%w: time restriction", ErrPolicy)
	ErrAgeVerificationRequired = fmt.Errorf("%w: age verification required", ErrPolicy)
	ErrPaymentNotConfigured    = fmt.Errorf("%w: payment platform not connected", ErrPolicy)
	ErrInsufficientPayment     = fmt.Errorf("%w: insufficient cash", ErrPolicy)
	ErrExcessiveRefundQuantity = fmt.Errorf("%w: refund quantity exceeds original", ErrPolicy)
	ErrInvalidRefundItem       = fmt.Errorf("%w: invalid item for refund", ErrPolicy)
	ErrNotRefundable           = fmt.Errorf("%w: only sales can be refunded", ErrPolicy)
	ErrForbidden               = fmt.Errorf("%w: role not permitted", ErrPolicy)
	ErrUnauthenticated         = fmt.Errorf("%w: authentication required", ErrPolicy)

	ErrAlreadyRefunded     = fmt.Errorf("%w: transaction already refunded", ErrConflict)
	ErrNotVoidable         = fmt.Errorf("%w: transaction cannot be voided", ErrConflict)
	ErrVoidWindowExpired   = fmt.Errorf("%w: transaction too old to void, process as refund instead", ErrConflict)
	ErrShiftAlreadyOpen    = fmt.Errorf("%w: shift already open", ErrConflict)
	ErrPaymentNotCompleted = fmt.Errorf("%w: payment not completed", ErrConflict)
	ErrInvalidTransition   = fmt.Errorf("%w: invalid state transition", ErrConflict)

	ErrPaymentGateway = fmt.Errorf("%w: payment gateway", ErrExternalService)

	ErrTransactionNotFound = fmt.Errorf("%w: transaction", ErrNotFound)
	ErrNoActiveShift       = fmt.Errorf("%w: no active shift", ErrNotFound)
	ErrProductNotFound     = fmt.Errorf("%w: product", ErrNotFound)
	ErrDepartmentNotFound  = fmt.Errorf("%w: department", ErrNotFound)
	ErrBusinessNotFound    = fmt.Errorf("%w: business", ErrNotFound)
)
