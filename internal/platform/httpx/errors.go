// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/crm-ims/crm-ims/internal/platform/i18n"
	"github.com/crm-ims/crm-ims/internal/shared"
)

type problemKind struct {
	status int
	title  string
}

var problemKinds = map[shared.Kind]problemKind{
	shared.KindNotFound:                {http.StatusNotFound, "Not Found"},
	shared.KindValidation:              {http.StatusBadRequest, "Validation Failed"},
	shared.KindConflict:                {http.StatusConflict, "Conflict"},
	shared.KindInsufficientStock:       {http.StatusBadRequest, "Insufficient Stock"},
	shared.KindInsufficientReservation: {http.StatusBadRequest, "Insufficient Reservation"},
	shared.KindForbidden:               {http.StatusForbidden, "Forbidden"},
	shared.KindUnauthorized:            {http.StatusUnauthorized, "Unauthorized"},
	shared.KindInternal:                {http.StatusInternalServerError, "Internal Error"},
}

// StatusFor returns the HTTP status used for err.
func StatusFor(err error) int {
	if pk, ok := problemKinds[shared.KindOf(err)]; ok {
		return pk.status
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Internal errors are logged and never leak their message to the client.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := shared.KindOf(err)
	pk, ok := problemKinds[kind]
	if !ok {
		kind, pk = shared.KindInternal, problemKinds[shared.KindInternal]
	}
	locale := shared.LocaleFromContext(r.Context())
	if kind == shared.KindInternal {
		slog.Default().ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		writeProblem(w, pk.status, pk.title, string(kind), i18n.Sprintf(locale, "internal error"))
		return
	}
	writeProblem(w, pk.status, pk.title, string(kind), Localize(locale, err))
}

// Localize renders the user-facing message of a domain error.
func Localize(locale string, err error) string {
	var stock *shared.InsufficientStockError
	if errors.As(err, &stock) {
		return i18n.Sprintf(locale, shared.MsgInsufficientStock, stock.Args()...)
	}
	var reservation *shared.InsufficientReservationError
	if errors.As(err, &reservation) {
		return i18n.Sprintf(locale, shared.MsgInsufficientReservation, reservation.Args()...)
	}
	var typed *shared.Error
	if errors.As(err, &typed) && typed.Message != "" {
		return i18n.Sprintf(locale, typed.Message, typed.Args...)
	}
	return err.Error()
}
