package cursor

import (
	"github.com/pkg/errors"

	"github.com/SimonWaldherr/dynsql/internal/types"
)

// Errors returned by registry operations. Callers match them with errors.Is;
// returned errors carry the cursor id and a stack trace.
var (
	ErrExhaustedPool       = errors.New("no free cursor slot")
	ErrInvalidID           = errors.New("cursor id out of range")
	ErrNotOpen             = errors.New("cursor is not opened")
	ErrNotParsed           = errors.New("cursor has no parsed statement")
	ErrUnknownVariable     = errors.New("bind variable not found")
	ErrUnboundVariable     = errors.New("bind variable has no value")
	ErrInvalidRange        = errors.New("invalid index range")
	ErrArraySizeMismatch   = errors.New("bind arrays differ in element count")
	ErrUnsupportedType     = errors.New("unsupported type")
	ErrInvalidPosition     = errors.New("invalid column position")
	ErrUndefinedColumn     = errors.New("column definition missing")
	ErrColumnCountMismatch = errors.New("column count does not match the statement")
	ErrMixedBulk           = errors.New("bulk and single-row operations cannot be mixed")
	ErrNotExecuted         = errors.New("cursor is not executed")
	ErrNoActiveBatch       = errors.New("no row has been fetched")
	ErrTypeMismatch        = errors.New("requested type differs from the column definition")
	ErrUnsupportedCast     = errors.New("no coercion path between types")
	ErrConstraintViolation = types.ErrConstraintViolation
)

func errorf(sentinel error, id ID, format string, args ...any) error {
	if format == "" {
		return errors.Wrapf(sentinel, "cursor %d", id)
	}
	return errors.Wrapf(sentinel, "cursor %d: "+format, append([]any{id}, args...)...)
}
