package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("failed to get mixer: %w", domain.ErrAssetNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"unknown kind", domain.ErrUnknownAssetKind, http.StatusNotFound, "NOT_FOUND"},
		{"conflict", fmt.Errorf("failed to update mixer: %w", domain.ErrConcurrentUpdate), http.StatusConflict, "CONFLICT"},
		{"locked", fmt.Errorf("failed to lock: %w", domain.ErrLockNotAcquired), http.StatusLocked, "LOCKED"},
		{"actor", domain.ErrInvalidActor, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"expired token", domain.ErrTokenExpired, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"invalid token", domain.ErrInvalidToken, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown field", fmt.Errorf("%w: wingspan", domain.ErrUnknownField), http.StatusBadRequest, "BAD_REQUEST"},
		{"invalid value", fmt.Errorf("%w: status", domain.ErrInvalidFieldValue), http.StatusBadRequest, "BAD_REQUEST"},
		{"app error passes through", NewBadRequest("bad limit"), http.StatusBadRequest, "BAD_REQUEST"},
		{"anything else", errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := MapError(tt.err)
			assert.Equal(t, tt.status, appErr.Status)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}
}

func TestMapError_WrappedTokenErrors(t *testing.T) {
	appErr := MapError(fmt.Errorf("authenticate: %w", domain.ErrTokenExpired))
	assert.Equal(t, http.StatusUnauthorized, appErr.Status)
	assert.Equal(t, "token expired", appErr.Message)
}

func TestMapError_KeepsFieldName(t *testing.T) {
	appErr := MapError(fmt.Errorf("%w: wingspan", domain.ErrUnknownField))
	assert.Equal(t, "unknown field: wingspan", appErr.Message)
}

func TestMapError_HidesInternals(t *testing.T) {
	appErr := MapError(errors.New("pq: password authentication failed"))
	assert.NotContains(t, appErr.Message, "password")
}
