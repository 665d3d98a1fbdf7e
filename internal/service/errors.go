package service

import (
	"errors"
	"fmt"

	"github.com/raakeshmj/keymanager/internal/store"
)

// Service-level error kinds. The transport layer maps these onto HTTP codes;
// nothing below the transport ever sees a status code.
var (
	// ErrUnauthorized covers every denial the validator is allowed to show a
	// client: malformed bearer, unknown key, disabled, expired, wrong secret.
	// The causes are indistinguishable outside the audit stream and logs.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited means the per-key threshold was exceeded.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound is an admin reference to a missing key or project.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is an admin create conflict.
	ErrAlreadyExists = errors.New("already exists")
	// ErrUnavailable means the store timed out or is unreachable; the request
	// may be retried by the caller.
	ErrUnavailable = errors.New("service unavailable")
	// ErrInternal covers corrupted stored data and programming defects.
	ErrInternal = errors.New("internal error")
)

// ValidationError is a rejected admin request body. The message is safe to
// return to the admin caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// fromStore lifts a gateway error into the service taxonomy.
func fromStore(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrAlreadyExists
	case errors.Is(err, store.ErrTransient):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
}
