package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrGameNotFound  = errors.New("game not found")
	ErrInvalidToken  = errors.New("invalid or expired code")
	ErrValidation    = errors.New("invalid session request")
	ErrSweepInFlight = errors.New("sweep already running")
)

// StorageError wraps a failure of the backing store. Callers may retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("session store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
