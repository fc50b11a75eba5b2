package database

import (
	"errors"
)

var (
	// ErrStoreNotOpened is the precondition failure for an uninitialized service.
	ErrStoreNotOpened = errors.New("Store not opened") //nolint:staticcheck // message is part of the service contract

	// ErrMissingKey is the precondition failure for an empty key argument.
	ErrMissingKey = errors.New("Must give a key") //nolint:staticcheck // message is part of the service contract

	// ErrMissingTable is the precondition failure for an empty table argument.
	ErrMissingTable = errors.New("Must give a table") //nolint:staticcheck // message is part of the service contract
)

// GuardError is a precondition failure raised by the service before the
// plugin is called. Plugin errors are never wrapped in a GuardError.
type GuardError struct {
	// Method is the service method that rejected the call (e.g. "setItem").
	Method string

	// Err is one of ErrStoreNotOpened, ErrMissingKey or ErrMissingTable.
	Err error
}

// Error implements the error interface.
func (e *GuardError) Error() string {
	return e.Method + ": " + e.Err.Error()
}

// Unwrap returns the underlying sentinel.
func (e *GuardError) Unwrap() error {
	return e.Err
}

func notOpened(method string) error {
	return &GuardError{Method: method, Err: ErrStoreNotOpened}
}

func missingKey(method string) error {
	return &GuardError{Method: method, Err: ErrMissingKey}
}

func missingTable(method string) error {
	return &GuardError{Method: method, Err: ErrMissingTable}
}

// IsGuardError reports whether err is a precondition failure.
func IsGuardError(err error) bool {
	var ge *GuardError
	return errors.As(err, &ge)
}
