// Package errs defines the storage sentinels and the structured error kinds
// returned by the service layer.
package errs

import (
	"errors"
	"fmt"
)

// Storage-level sentinels, wrapped by the repository as "%w: <driver message>".
var (
	ErrDB             = errors.New("database error")
	ErrRecordNotFound = errors.New("record wasn't found")
	ErrDuplicated     = errors.New("object has already existed")
)

// Kind classifies an error for the caller.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindInsufficientShares Kind = "insufficient_shares"
	KindQuoteUnavailable   Kind = "quote_unavailable"
	KindNotFound           Kind = "not_found"
	KindUnauthorized       Kind = "unauthorized"
	KindPaginationState    Kind = "pagination_state"
	KindPersistence        Kind = "persistence_failure"
)

// Error is the structured error every service operation returns.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func PaginationState(format string, args ...any) *Error {
	return New(KindPaginationState, format, args...)
}

// Persistence wraps a storage failure; the message stays generic.
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}

// KindOf returns the kind of err, or KindPersistence for anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// Sentinel kinds for errors.Is checks.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds}
	ErrInsufficientShares = &Error{Kind: KindInsufficientShares}
	ErrQuoteUnavailable   = &Error{Kind: KindQuoteUnavailable}
	ErrPaginationState    = &Error{Kind: KindPaginationState}
	ErrPersistence        = &Error{Kind: KindPersistence}
)
