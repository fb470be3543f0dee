// Package errs defines the error kinds surfaced by the inspector.
//
// Callers branch on the kind through the Is* predicates instead of matching
// driver errors directly.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an inspector error.
type Kind int

const (
	KindUnknown        Kind = iota
	KindUsage               // session not backed by the expected store
	KindStoreOperation      // connectivity, authorization or command failure
	KindInvalidInput        // bad arguments from the caller
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindStoreOperation:
		return "store_operation"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Error carries a kind, a message and the original cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error around cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsUsage reports whether err signals a test or configuration mistake.
func IsUsage(err error) bool {
	return KindOf(err) == KindUsage
}

// IsStoreOperation reports whether err came from the underlying store.
func IsStoreOperation(err error) bool {
	return KindOf(err) == KindStoreOperation
}

// IsInvalidInput reports whether err was caused by caller arguments.
func IsInvalidInput(err error) bool {
	return KindOf(err) == KindInvalidInput
}

// KindOf returns the kind of the first *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
