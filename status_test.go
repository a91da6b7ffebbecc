package folio_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/folio"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind folio.Kind
	}{
		{"ok", nil, folio.CodeOK, folio.KindNone},
		{"authorization", folio.ErrAuthorizationFailure, folio.CodeAuthorization, folio.KindUnauthorized},
		{"user not found", folio.ErrUserNotFound, folio.CodeUserNotFound, folio.KindNotFound},
		{"user exists", folio.ErrUserExists, folio.CodeUserExists, folio.KindConflict},
		{"store not found", folio.ErrStoreNotFound, folio.CodeStoreNotFound, folio.KindNotFound},
		{"store exists", folio.ErrStoreExists, folio.CodeStoreExists, folio.KindConflict},
		{"book not found", folio.ErrBookNotFound, folio.CodeBookNotFound, folio.KindNotFound},
		{"book exists", folio.ErrBookExists, folio.CodeBookExists, folio.KindConflict},
		{"stock", folio.ErrInsufficientStock, folio.CodeInsufficientStock, folio.KindConflict},
		{"order id", folio.ErrInvalidOrderID, folio.CodeInvalidOrderID, folio.KindNotFound},
		{"funds", folio.ErrInsufficientFunds, folio.CodeInsufficientFunds, folio.KindConflict},
		{"not delivered", folio.ErrBooksNotDelivered, folio.CodeNotDelivered, folio.KindConflict},
		{"repeat deliver", folio.ErrBooksRepeatDeliver, folio.CodeRepeatDeliver, folio.KindConflict},
		{"repeat receive", folio.ErrBooksRepeatReceive, folio.CodeRepeatReceive, folio.KindConflict},
		{"user in use", folio.ErrUserInUse, folio.CodeUserInUse, folio.KindConflict},
		{"throttled", folio.ErrTooManyAttempts, folio.CodeTooManyAttempts, folio.KindTransient},
		{"validation", folio.ValidationError{Field: "count", Message: "must be positive"}, folio.CodeInvalidInput, folio.KindInvalid},
		{"transient", folio.Transient(errors.New("connection reset")), folio.CodeStorage, folio.KindTransient},
		{"wrapped", fmt.Errorf("%w: b1 in s1", folio.ErrInsufficientStock), folio.CodeInsufficientStock, folio.KindConflict},
		{"unknown", errors.New("boom"), folio.CodeInternal, folio.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := folio.StatusOf(tt.err)
			assert.Equal(t, tt.code, st.Code)
			assert.Equal(t, tt.kind, st.Kind)
			assert.Equal(t, tt.err == nil, st.OK())
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), st.Message)
			}
		})
	}
}

func TestTransient(t *testing.T) {
	assert.NoError(t, folio.Transient(nil))

	cause := errors.New("serialization failure")
	err := folio.Transient(cause)
	assert.ErrorIs(t, err, folio.ErrTransientStorage)
	assert.ErrorIs(t, err, cause)
	assert.True(t, folio.IsRetryable(err))
	assert.Same(t, err, folio.Transient(err), "already transient errors are not wrapped twice")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "not_found", folio.KindNotFound.String())
	assert.Equal(t, "unauthorized", folio.KindUnauthorized.String())
	assert.Equal(t, "internal", folio.KindInternal.String())
}
