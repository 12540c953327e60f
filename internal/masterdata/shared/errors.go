package shared

import (
	"errors"

	"github.com/jackc/pgx/v5"

	appshared "github.com/crm-ims/crm-ims/internal/shared"
)

// MapWriteError converts postgres constraint errors into domain errors.
// conflictMsg and args describe the unique key that was violated.
func MapWriteError(err error, conflictMsg string, args ...any) error {
	switch {
	case err == nil:
		return nil
	case appshared.IsUniqueViolation(err):
		return &appshared.Error{Kind: appshared.KindConflict, Message: conflictMsg, Args: args, Cause: err}
	case appshared.IsForeignKeyViolation(err):
		return &appshared.Error{Kind: appshared.KindConflict, Message: "record is referenced by other records", Cause: err}
	}
	return err
}

// MapReadError turns pgx.ErrNoRows into a not-found error.
func MapReadError(err error, notFoundMsg string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return appshared.NotFound(notFoundMsg, id)
	}
	return err
}
