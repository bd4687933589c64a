package apperr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestHelpers_WrapSentinels(t *testing.T) {
	require.ErrorIs(t, Validation("stage %q is unknown", "WELD"), ErrValidation)
	require.ErrorIs(t, Permission("level %d", 1), ErrPermission)
	require.ErrorIs(t, Conflict("request is %s", "PENDING"), ErrStateConflict)
	require.ErrorIs(t, NotFound("request %d", 7), ErrNotFound)

	err := Validation("confirmed date is required")
	require.Contains(t, err.Error(), "confirmed date is required")
	require.NotErrorIs(t, err, ErrPermission)
}

func TestPersistence_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Persistence(cause, "update assembly")

	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "update assembly")
	require.Contains(t, err.Error(), "connection refused")

	// pkg/errors.Wrap поверх не ломает классификацию
	require.ErrorIs(t, errors.Wrap(err, "confirm"), ErrPersistence)
}

func TestPersistence_ClassifiedPassesThrough(t *testing.T) {
	nf := NotFound("assembly %s", "A1")
	err := Persistence(nf, "get assembly")
	require.ErrorIs(t, err, ErrNotFound)
	require.NotErrorIs(t, err, ErrPersistence)

	require.NoError(t, Persistence(nil, "noop"))
}

func TestRowsAffected(t *testing.T) {
	err := RowsAffected("set galv_date", 0)
	require.ErrorIs(t, err, ErrPersistence)
	require.Contains(t, err.Error(), "got 0")
}
