package prepaid

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("prepaid: not found")
	ErrAlreadyExists = errors.New("prepaid: already exists")
	ErrInvalidInput  = errors.New("prepaid: invalid input")

	// Account / ledger errors
	ErrAccountNotFound     = errors.New("prepaid: account not found")
	ErrInsufficientBalance = errors.New("prepaid: insufficient balance")
	ErrCurrencyMismatch    = errors.New("prepaid: currency mismatch")
	ErrInvalidAmount       = errors.New("prepaid: amount must be positive")

	// Transaction / settlement errors
	ErrTransactionNotFound   = errors.New("prepaid: transaction not found")
	ErrTransactionNotPending = errors.New("prepaid: transaction is not pending")

	// Job errors
	ErrJobNotFound = errors.New("prepaid: job not found")

	// Catalog errors
	ErrJobTypeNotFound = errors.New("prepaid: job type not found")
	ErrJobTypeArchived = errors.New("prepaid: job type is archived")

	// Handler errors
	ErrHandlerNotRegistered = errors.New("prepaid: no handler registered for job type")
	ErrDuplicateHandler     = errors.New("prepaid: duplicate handler registration")
	ErrHandlerFailure       = errors.New("prepaid: analysis handler failed")
	ErrInvalidResult        = errors.New("prepaid: analysis result missing required fields")

	// Store errors
	ErrStoreNotReady     = errors.New("prepaid: store not ready")
	ErrStoreClosed       = errors.New("prepaid: store is closed")
	ErrTransactionFailed = errors.New("prepaid: store transaction failed")
	ErrMigrationFailed   = errors.New("prepaid: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("prepaid: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrJobTypeNotFound)
}

// IsDeclined returns true if the error means a charge or reservation was
// declined rather than failed: the caller asked for more than the account
// can cover, and no side effect was recorded.
func IsDeclined(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
