package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategories(t *testing.T) {
	cause := errors.New("insufficient funds")

	tests := []struct {
		name     string
		err      error
		cat      Category
		internal bool
	}{
		{name: "bad request", err: BadRequestError(cause, "amount too large"), cat: CategoryDataError},
		{name: "not supported", err: NotSupportedError(nil, "shared address"), cat: CategoryNotSupported},
		{name: "conflict", err: ConflictError(nil, "index taken"), cat: CategoryDataConflict},
		{name: "locked", err: LockedError(nil, "sweep running"), cat: CategoryLocked},
		{name: "dependency", err: DependencyError(cause, "node rejected"), cat: CategoryDependencyFailure, internal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("withdraw: %w", tt.err)
			assert.True(t, Is(wrapped, tt.cat))
			assert.Equal(t, tt.internal, IsInternalError(wrapped))
		})
	}
}

func TestServiceError_UnwrapsCause(t *testing.T) {
	cause := errors.New("insufficient funds")
	err := BadRequestError(cause, "amount too large")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "insufficient funds", err.Error())
	assert.True(t, IsInternalError(cause))
	assert.Equal(t, "CategoryLocked", CategoryLocked.String())
}
