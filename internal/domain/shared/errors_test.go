package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("load: %w", ErrTaskNotFound)

	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, "task.Find: task not found", ErrTaskNotFound.Error())
}

func TestWrapError_KeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError("capacity", "Recalculate", ErrServiceUnavailable, "could not persist", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Contains(t, err.Error(), "capacity.Recalculate")
}

func TestCategorizedError_Validation(t *testing.T) {
	err := ValidationError("capacity.Update",
		FieldError{Field: "max_tasks_per_day", Message: "must be between 1 and 10"},
		FieldError{Field: "default_focus_minutes", Message: "must be between 10 and 90"},
	)

	assert.True(t, IsValidation(err))
	cat, ok := CategoryOf(fmt.Errorf("handler: %w", err))
	assert.True(t, ok)
	assert.Equal(t, CategoryValidation, cat)

	var ce *CategorizedError
	assert.True(t, errors.As(err, &ce))
	msg, ok := ce.FirstFieldMessage()
	assert.True(t, ok)
	assert.Equal(t, "must be between 1 and 10", msg)
	assert.Contains(t, err.Error(), "max_tasks_per_day")
}

func TestCategorize_NetworkKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")
	err := NetworkError("tasks.Select", cause)

	assert.ErrorIs(t, err, cause)
	assert.False(t, IsValidation(err))
	cat, ok := CategoryOf(err)
	assert.True(t, ok)
	assert.Equal(t, CategoryNetwork, cat)

	assert.Nil(t, Categorize(CategoryDatabase, "x", nil))
}

func TestCategory_IsValid(t *testing.T) {
	assert.True(t, CategoryAuthentication.IsValid())
	assert.False(t, Category("offline").IsValid())
}
