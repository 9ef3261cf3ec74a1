package domain

// DomainError represents a domain-specific error
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) *DomainError {
	return &DomainError{Message: message}
}

// Custom errors
var (
	ErrAssetNotFound     = NewDomainError("asset not found")
	ErrUnknownAssetKind  = NewDomainError("unknown asset kind")
	ErrUnknownField      = NewDomainError("unknown field")
	ErrInvalidActor      = NewDomainError("actor id is required")
	ErrConcurrentUpdate  = NewDomainError("asset was modified by another writer")
	ErrLockNotAcquired   = NewDomainError("asset is locked by another writer")
	ErrInvalidFieldValue = NewDomainError("invalid field value")
	ErrInvalidToken      = NewDomainError("invalid token")
	ErrTokenExpired      = NewDomainError("token expired")
)
