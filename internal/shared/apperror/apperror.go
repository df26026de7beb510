package apperror

import (
	"errors"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindNotFound              Kind = "NOT_FOUND"
	KindInvalidState          Kind = "INVALID_STATE"
	KindLimitExceeded         Kind = "LIMIT_EXCEEDED"
	KindInsufficientInventory Kind = "INSUFFICIENT_INVENTORY"
	KindMixedCurrency         Kind = "MIXED_CURRENCY"
	KindUntrustedNotification Kind = "UNTRUSTED_NOTIFICATION"
	KindDuplicateNotification Kind = "DUPLICATE_NOTIFICATION"

	KindValidation   Kind = "VALIDATION"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindConflict     Kind = "CONFLICT"
	KindUpstream     Kind = "UPSTREAM"
	KindInternal     Kind = "INTERNAL"
)

// Error is a business or infrastructure failure with a stable kind.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels can be compared with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.Message == ""
	}
	return false
}

// WithDetail returns a copy of e carrying an extra detail field.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{Kind: e.Kind, Message: e.Message, Details: details, Err: e.Err}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInvalidState          = &Error{Kind: KindInvalidState}
	ErrLimitExceeded         = &Error{Kind: KindLimitExceeded}
	ErrInsufficientInventory = &Error{Kind: KindInsufficientInventory}
	ErrMixedCurrency         = &Error{Kind: KindMixedCurrency}
	ErrUntrustedNotification = &Error{Kind: KindUntrustedNotification}
	ErrDuplicateNotification = &Error{Kind: KindDuplicateNotification}
	ErrUpstream              = &Error{Kind: KindUpstream}
)

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailsOf returns the detail map of err, if any.
func DetailsOf(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// HTTPStatus maps a kind to the status code surfaced to callers.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindConflict, KindInsufficientInventory:
		return http.StatusConflict
	case KindLimitExceeded, KindMixedCurrency, KindValidation:
		return http.StatusUnprocessableEntity
	case KindUntrustedNotification, KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindDuplicateNotification:
		return http.StatusOK
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller should retry (infrastructure failure).
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUpstream, KindInternal:
		return true
	}
	return false
}
