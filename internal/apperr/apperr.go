package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping and retry decisions.
type Kind int

const (
	// KindInternal covers unexpected persistence or infrastructure failures.
	// Safe to retry from scratch: transactions are all-or-nothing.
	KindInternal Kind = iota
	// KindNotFound means the referenced order/product/payment does not exist.
	KindNotFound
	// KindValidation means the caller sent bad input and must correct it.
	KindValidation
	// KindConflict covers insufficient stock, duplicate payments, invalid
	// status transitions and re-confirmation of settled payments.
	KindConflict
	// KindUnavailable means a bounded lock wait expired; the whole operation
	// may be retried.
	KindUnavailable
)

// Error carries a kind alongside the message and optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

func Unavailable(format string, args ...interface{}) *Error {
	return New(KindUnavailable, format, args...)
}

// KindOf extracts the kind from an error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
