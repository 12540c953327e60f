package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind classifies domain errors for callers and the HTTP boundary.
type Kind string

const (
	KindNotFound                Kind = "not_found"
	KindValidation              Kind = "validation"
	KindConflict                Kind = "conflict"
	KindInsufficientStock       Kind = "insufficient_stock"
	KindInsufficientReservation Kind = "insufficient_reservation"
	KindForbidden               Kind = "forbidden"
	KindUnauthorized            Kind = "unauthorized"
	KindInternal                Kind = "internal"
)

// Error is the typed error returned by services.
// Message is a message key understood by the i18n catalog; Args fill its verbs.
type Error struct {
	Kind    Kind
	Message string
	Args    []any
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Args) > 0 {
		msg = fmt.Sprintf(e.Message, e.Args...)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors of the same kind so errors.Is(err, ErrNotFound) works for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	// ErrNotFound matches any not-found error.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrValidation matches any validation error.
	ErrValidation = &Error{Kind: KindValidation}
	// ErrConflict matches any conflict error.
	ErrConflict = &Error{Kind: KindConflict}
	// ErrInsufficientStock matches any insufficient stock error.
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	// ErrInsufficientReservation matches any insufficient reservation error.
	ErrInsufficientReservation = &Error{Kind: KindInsufficientReservation}
	// ErrForbidden matches any authorization failure.
	ErrForbidden = &Error{Kind: KindForbidden}
	// ErrUnauthorized matches missing or invalid credentials.
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	// ErrAuthenticationRequired is returned when a request carries no valid token.
	ErrAuthenticationRequired = &Error{Kind: KindUnauthorized, Message: "authentication required"}
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Message: "invalid username or password"}
)

// NotFound builds a not-found error.
func NotFound(msg string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: msg, Args: args}
}

// Validation builds a validation error.
func Validation(msg string, args ...any) error {
	return &Error{Kind: KindValidation, Message: msg, Args: args}
}

// Conflict builds a conflict error.
func Conflict(msg string, args ...any) error {
	return &Error{Kind: KindConflict, Message: msg, Args: args}
}

// Forbidden builds an authorization error.
func Forbidden(msg string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: msg, Args: args}
}

// Internal wraps a persistence or infrastructure failure.
func Internal(msg string, cause error) error {
	return &Error{Kind: KindInternal, Message: msg, Cause: cause}
}

// WrapInternal keeps typed domain errors and wraps anything else as internal.
func WrapInternal(msg string, err error) error {
	if err == nil || KindOf(err) != KindInternal {
		return err
	}
	return Internal(msg, err)
}

// InsufficientStockError reports a reservation that cannot be satisfied.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	WarehouseID int64
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

// MsgInsufficientStock formats InsufficientStockError messages.
const MsgInsufficientStock = "insufficient stock for %q: available %s, requested %s"

// MsgInsufficientReservation formats InsufficientReservationError messages.
const MsgInsufficientReservation = "insufficient reserved stock for product %d at warehouse %d: reserved %s, required %s"

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf(MsgInsufficientStock, e.Args()...)
}

// Args returns the values for MsgInsufficientStock.
func (e *InsufficientStockError) Args() []any {
	return []any{e.ProductName, e.Available.String(), e.Requested.String()}
}

// Is lets errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// InsufficientReservationError reports a shipment larger than its reservation.
type InsufficientReservationError struct {
	ProductID   int64
	WarehouseID int64
	Reserved    decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientReservationError) Error() string {
	return fmt.Sprintf(MsgInsufficientReservation, e.Args()...)
}

// Args returns the values for MsgInsufficientReservation.
func (e *InsufficientReservationError) Args() []any {
	return []any{e.ProductID, e.WarehouseID, e.Reserved.String(), e.Requested.String()}
}

// Is lets errors.Is(err, ErrInsufficientReservation) match.
func (e *InsufficientReservationError) Is(target error) bool {
	return target == ErrInsufficientReservation
}

// KindOf reports the error kind, defaulting to internal for unknown errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var stock *InsufficientStockError
	if errors.As(err, &stock) {
		return KindInsufficientStock
	}
	var reservation *InsufficientReservationError
	if errors.As(err, &reservation) {
		return KindInsufficientReservation
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}
