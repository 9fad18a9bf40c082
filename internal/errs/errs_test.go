package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	assert.ErrorIs(t, NotFound("opinion %s", "o1"), ErrNotFound)
	assert.ErrorIs(t, NotAllowed("nope"), ErrNotAllowed)
	assert.ErrorIs(t, InvalidInput("bad"), ErrInvalidInput)
	assert.NotErrorIs(t, NotFound("x"), ErrNotAllowed)
	assert.Equal(t, "opinion o1", NotFound("opinion %s", "o1").Error())
}

func TestConflictIsNotAllowed(t *testing.T) {
	err := Conflict("key %s already scheduled", "k")
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.NotErrorIs(t, err, ErrInvalidState)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestInvalidStateIsNotAllowed(t *testing.T) {
	err := InvalidState("deadline in the past")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestWrappedErrorsKeepKind(t *testing.T) {
	err := fmt.Errorf("initialize: %w", Conflict("dup"))
	assert.ErrorIs(t, err, ErrConflict)

	var typed *Error
	assert.True(t, errors.As(err, &typed))
	assert.Equal(t, ErrNotAllowed, typed.Kind())
}
