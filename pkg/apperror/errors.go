package apperror

import (
	"errors"
	"net/http"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewBadRequest(message string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Message: message, Status: http.StatusBadRequest}
}

func NewUnauthorized(message string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: message, Status: http.StatusUnauthorized}
}

func NewNotFound(message string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: message, Status: http.StatusNotFound}
}

func NewConflict(message string) *AppError {
	return &AppError{Code: "CONFLICT", Message: message, Status: http.StatusConflict}
}

func NewLocked(message string) *AppError {
	return &AppError{Code: "LOCKED", Message: message, Status: http.StatusLocked}
}

func NewInternalServer(message string) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: message, Status: http.StatusInternalServerError}
}

// MapError classifies an error for the HTTP layer. Validation errors keep their
// wrapped message so callers see which field was rejected.
func MapError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrAssetNotFound):
		return NewNotFound(domain.ErrAssetNotFound.Error())
	case errors.Is(err, domain.ErrUnknownAssetKind):
		return NewNotFound(domain.ErrUnknownAssetKind.Error())
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return NewConflict(domain.ErrConcurrentUpdate.Error())
	case errors.Is(err, domain.ErrLockNotAcquired):
		return NewLocked(domain.ErrLockNotAcquired.Error())
	case errors.Is(err, domain.ErrInvalidActor):
		return NewUnauthorized(domain.ErrInvalidActor.Error())
	case errors.Is(err, domain.ErrTokenExpired):
		return NewUnauthorized(domain.ErrTokenExpired.Error())
	case errors.Is(err, domain.ErrInvalidToken):
		return NewUnauthorized(domain.ErrInvalidToken.Error())
	case errors.Is(err, domain.ErrUnknownField), errors.Is(err, domain.ErrInvalidFieldValue):
		return NewBadRequest(err.Error())
	default:
		return NewInternalServer("An unexpected error occurred")
	}
}
