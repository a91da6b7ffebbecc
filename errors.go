package folio

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidInput         = errors.New("folio: invalid input")
	ErrAuthorizationFailure = errors.New("folio: authorization fail")
	ErrTooManyAttempts      = errors.New("folio: too many attempts")

	// Account errors
	ErrUserNotFound      = errors.New("folio: non exist user id")
	ErrUserExists        = errors.New("folio: exist user id")
	ErrUserInUse         = errors.New("folio: user owns a store")
	ErrInsufficientFunds = errors.New("folio: not sufficient funds")

	// Store and catalog errors
	ErrStoreNotFound     = errors.New("folio: non exist store id")
	ErrStoreExists       = errors.New("folio: exist store id")
	ErrBookNotFound      = errors.New("folio: non exist book id")
	ErrBookExists        = errors.New("folio: exist book id")
	ErrInsufficientStock = errors.New("folio: stock level low")

	// Order errors
	ErrInvalidOrderID     = errors.New("folio: invalid order id")
	ErrBooksNotDelivered  = errors.New("folio: books not delivered")
	ErrBooksRepeatDeliver = errors.New("folio: books repeat deliver")
	ErrBooksRepeatReceive = errors.New("folio: books repeat receive")

	// Store errors
	ErrTransientStorage = errors.New("folio: transient storage failure")
	ErrMigrationFailed  = errors.New("folio: migration failed")
)

// Kind classifies an error for callers deciding whether to retry.
type Kind int

const (
	KindNone Kind = iota
	KindInvalid
	KindNotFound
	KindConflict
	KindUnauthorized
	KindTransient
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// ValidationError represents a validation failure with details.
// It unwraps to ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("folio: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// Transient marks err as a retryable storage failure while keeping the
// driver error in the chain.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransientStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientStorage, err)
}

// IsNotFound returns true if the error reports a missing user, store, book
// or order.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrStoreNotFound) ||
		errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrInvalidOrderID)
}

// IsConflict returns true if the error is a business-rule conflict that
// stays permanent until state changes.
func IsConflict(err error) bool {
	return errors.Is(err, ErrUserExists) ||
		errors.Is(err, ErrStoreExists) ||
		errors.Is(err, ErrBookExists) ||
		errors.Is(err, ErrUserInUse) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrBooksNotDelivered) ||
		errors.Is(err, ErrBooksRepeatDeliver) ||
		errors.Is(err, ErrBooksRepeatReceive)
}

// IsAuthorization returns true for password or ownership mismatches.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrAuthorizationFailure)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStorage) ||
		errors.Is(err, ErrTooManyAttempts)
}

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindInvalid
	case IsAuthorization(err):
		return KindUnauthorized
	case IsNotFound(err):
		return KindNotFound
	case IsConflict(err):
		return KindConflict
	case IsRetryable(err):
		return KindTransient
	default:
		return KindInternal
	}
}
