// Package apperr defines the error taxonomy shared by the store, the sync
// engine, and the remote client. Errors are wrapped with %w and classified
// with errors.Is.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// Remote failures.
	ErrConnectivity = errors.New("connectivity")
	ErrTimeout      = errors.New("timeout")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation")

	// Local failures.
	ErrStorage       = errors.New("storage")
	ErrDepthExceeded = errors.New("folder depth exceeded")
	ErrCycle         = errors.New("folder cycle")
	ErrIntegrity     = errors.New("data integrity")
	ErrSystemFolder  = errors.New("system folder is read-only")
)

// Kind is a coarse classification used by status reporting.
type Kind string

const (
	KindNone         Kind = ""
	KindConnectivity Kind = "connectivity"
	KindAuth         Kind = "auth"
	KindValidation   Kind = "validation"
	KindStorage      Kind = "storage"
	KindOther        Kind = "other"
)

// Classify returns the Kind of err.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnauthorized):
		return KindAuth
	case errors.Is(err, ErrConnectivity), errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return KindConnectivity
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrDepthExceeded), errors.Is(err, ErrCycle):
		return KindValidation
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindOther
	}
}

// Retryable reports whether a failed remote call may succeed if repeated.
func Retryable(err error) bool {
	return Classify(err) == KindConnectivity
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// Storage wraps a local database failure so callers can classify it.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
