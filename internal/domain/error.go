package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidInput     = ErrInvalidArgument
	ErrInvalidState     = errors.New("operation not allowed in current state")
	ErrUndetermined     = errors.New("entitlement could not be determined")
	ErrRefundInProgress = errors.New("refund already in progress for transaction")

	// Persistence errors
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")
)

// Error codes exposed to callers.
const (
	CodeNotFound      = "NOT_FOUND"
	CodeInvalidState  = "INVALID_STATE"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeUndetermined  = "UNDETERMINED"
	CodeProviderError = "PROVIDER_ERROR"
	CodeInternal      = "INTERNAL"
)

// ProviderError carries a payment provider rejection through to the caller unchanged.
type ProviderError struct {
	Provider   string
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Code classifies err into the caller-facing taxonomy.
func Code(err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return CodeProviderError
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrRefundInProgress):
		return CodeInvalidState
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidInput
	case errors.Is(err, ErrUndetermined):
		return CodeUndetermined
	default:
		return CodeInternal
	}
}
