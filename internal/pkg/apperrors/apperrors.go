package apperrors

import (
	"errors"
	"fmt"
)

// Kind is a stable discriminator that callers (HTTP layer, clients) can branch
// on without parsing messages.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflict"
	KindTierExceeded Kind = "tier_exceeded"
	KindUnauthorized Kind = "unauthorized"
)

// Error carries a kind, a human readable message and optional structured
// details for client display (e.g. the project summary on an owner-accept
// rejection, or feature/role on a tier allowance failure).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetails returns the error with structured details attached.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// KindOf extracts the kind from an error chain, or "" for plain errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// DetailsOf extracts structured details from an error chain, or nil.
func DetailsOf(err error) map[string]interface{} {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return nil
}

// IsNotFound reports whether the error chain carries the NotFound kind.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsConflict reports whether the error chain carries the Conflict kind.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsTierExceeded reports whether the error chain carries the TierExceeded kind.
func IsTierExceeded(err error) bool {
	return KindOf(err) == KindTierExceeded
}
