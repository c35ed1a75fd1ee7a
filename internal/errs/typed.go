package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// StorageError wraps a failure of the local storage engine (quota, corruption, closed handle).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError for op. A nil err stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// TransportError describes a failed remote call. Status is 0 when no response was received.
type TransportError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("transport: %v", e.Err)
	case e.Code != "":
		return fmt.Sprintf("transport: HTTP %d %s: %s", e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("transport: HTTP %d: %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("transport: HTTP %d", e.Status)
	}
}

// Unwrap exposes the underlying network error, or ErrUnauthorized for 401/403.
func (e *TransportError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
