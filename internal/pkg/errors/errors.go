package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrDuplicate  = errors.New("duplicate")
	ErrProvider   = errors.New("provider failed")
	ErrStorage    = errors.New("storage failed")
	ErrTimeout    = errors.New("timed out")
	ErrInternal   = errors.New("internal")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

func IsProvider(err error) bool {
	return errors.Is(err, ErrProvider)
}

func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Validation wraps a reason into the validation class.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Provider classifies an external AI call failure, keeping the cause.
// Context deadline expiry is reported as a timeout so callers can tell
// "retry with backoff" apart from "the provider rejected us".
func Provider(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrProvider, err)
}

// Storage classifies a database failure, keeping the cause.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
