package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies billing-core errors so controllers can map them to
// HTTP responses and callers can decide whether a retry makes sense.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindGateway
	KindSignature
	KindBelowMinimum
)

// Sentinels for errors.Is checks.
var (
	ErrValidation   = &Error{kind: KindValidation, msg: "validation failed"}
	ErrNotFound     = &Error{kind: KindNotFound, msg: "not found"}
	ErrConflict     = &Error{kind: KindConflict, msg: "conflicting state transition"}
	ErrGateway      = &Error{kind: KindGateway, msg: "gateway call failed"}
	ErrSignature    = &Error{kind: KindSignature, msg: "signature verification failed"}
	ErrBelowMinimum = &Error{kind: KindBelowMinimum, msg: "amount below configured minimum"}
)

// Error is the shared error type of the billing core.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Is matches any error of the same kind, so
// errors.Is(err, apperr.ErrConflict) works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.kind == e.kind
}

func (e *Error) Kind() Kind { return e.kind }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error { return newf(KindValidation, format, args...) }
func NotFoundf(format string, args ...any) *Error   { return newf(KindNotFound, format, args...) }
func Conflictf(format string, args ...any) *Error   { return newf(KindConflict, format, args...) }
func Signaturef(format string, args ...any) *Error  { return newf(KindSignature, format, args...) }

func BelowMinimumf(format string, args ...any) *Error {
	return newf(KindBelowMinimum, format, args...)
}

// Gatewayf wraps a remote failure; callers may retry these.
func Gatewayf(err error, format string, args ...any) *Error {
	return &Error{kind: KindGateway, msg: fmt.Sprintf(format, args...), err: err}
}

// KindOf extracts the kind from anywhere in the chain; zero for
// non-domain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return 0
}

// Retryable reports whether the caller should retry with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrGateway)
}
