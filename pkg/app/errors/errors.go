// Package errors classifies service failures so callers can tell a rejected
// request from a broken dependency without matching on messages.
package errors

import (
	"errors"
)

// Category defines error category
type Category int

const (
	// CategoryNoError is used for request tracking when an operation returns no error.
	CategoryNoError Category = iota
	// CategoryDataError The caller sent an invalid amount, address or chain.
	CategoryDataError
	// CategoryNotSupported The operation does not apply to the chain's address mode.
	CategoryNotSupported
	// CategoryDataConflict The request clashes with existing state, e.g. a
	// concurrent index allocation that kept losing.
	CategoryDataConflict
	// CategoryLocked A sweep or ledger lock is held by a concurrent operation.
	CategoryLocked
	// CategoryDependencyFailure A chain node or the database failed the call.
	CategoryDependencyFailure
	// CategoryGeneralError The service failed in an unexpected way
	CategoryGeneralError
)

func (c Category) String() string {
	switch c {
	case CategoryNoError:
		return "CategoryNoError"
	case CategoryDataError:
		return "CategoryDataError"
	case CategoryNotSupported:
		return "CategoryNotSupported"
	case CategoryDataConflict:
		return "CategoryDataConflict"
	case CategoryLocked:
		return "CategoryLocked"
	case CategoryDependencyFailure:
		return "CategoryDependencyFailure"
	default:
		return "CategoryGeneralError"
	}
}

// ServiceError carries a category and a caller-facing message alongside the
// underlying cause.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is matches another error by message.
func (err ServiceError) Is(target error) bool {
	return err.Message == target.Error()
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

// IsInternalError reports whether err is not a plain rejection of the
// request. Untyped errors count as internal.
func IsInternalError(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category < CategoryDependencyFailure {
		return false
	}
	return true
}

func newError(cat Category, fallback string, err error, message string) error {
	if err == nil {
		err = errors.New(fallback)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// BadRequestError returns an error with category DataError
func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, "bad request", err, message)
}

// NotSupportedError returns an error with category NotSupported
func NotSupportedError(err error, message string) error {
	return newError(CategoryNotSupported, "not supported", err, message)
}

// ConflictError returns an error with category DataConflict
func ConflictError(err error, message string) error {
	return newError(CategoryDataConflict, "conflict", err, message)
}

// LockedError returns an error with category Locked
func LockedError(err error, message string) error {
	return newError(CategoryLocked, "locked", err, message)
}

// DependencyError returns an error with category DependencyFailure
func DependencyError(err error, message string) error {
	return newError(CategoryDependencyFailure, "dependency failure", err, message)
}
