package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the saga branches on. Adapters map
// gateway- and supplier-specific errors into exactly one kind, so the saga
// never inspects external error types.
type ErrorKind string

const (
	KindValidation                     ErrorKind = "validation_error"
	KindPaymentDeclined                ErrorKind = "payment_declined"
	KindPaymentGatewayUnavailable      ErrorKind = "payment_gateway_unavailable"
	KindReservationRejected            ErrorKind = "reservation_rejected"
	KindReservationProviderUnavailable ErrorKind = "reservation_provider_unavailable"
	KindRefundFailed                   ErrorKind = "refund_failed"
	KindAlreadyCancelled               ErrorKind = "already_cancelled"
	KindStatusConflict                 ErrorKind = "status_conflict"
	KindNotFound                       ErrorKind = "not_found"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind via the sentinel helpers below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the taxonomy kind from any error in the chain, or ""
// when the error did not originate from the booking core.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Kind sentinels for errors.Is checks.
var (
	ErrValidation                     = &Error{Kind: KindValidation}
	ErrPaymentDeclined                = &Error{Kind: KindPaymentDeclined}
	ErrPaymentGatewayUnavailable      = &Error{Kind: KindPaymentGatewayUnavailable}
	ErrReservationRejected            = &Error{Kind: KindReservationRejected}
	ErrReservationProviderUnavailable = &Error{Kind: KindReservationProviderUnavailable}
	ErrRefundFailed                   = &Error{Kind: KindRefundFailed}
	ErrAlreadyCancelled               = &Error{Kind: KindAlreadyCancelled}
	ErrStatusConflict                 = &Error{Kind: KindStatusConflict}
	ErrNotFound                       = &Error{Kind: KindNotFound}
)
