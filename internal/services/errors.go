package services

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound           ErrorKind = "not_found"
	KindAuthorization      ErrorKind = "authorization"
	KindInvalidState       ErrorKind = "invalid_state"
	KindDuplicateReview    ErrorKind = "duplicate_review"
	KindValidation         ErrorKind = "validation"
	KindEditWindowExpired  ErrorKind = "edit_window_expired"
	KindVisibilityViolated ErrorKind = "visibility_violation"
)

// WorkflowError is a business-rule failure. It is never retryable: the
// caller has to change its input before trying again.
type WorkflowError struct {
	Kind    ErrorKind
	Message string
}

func (e *WorkflowError) Error() string {
	return e.Message
}

// Is matches any WorkflowError of the same kind, so callers can test
// errors.Is(err, ErrNotFound) regardless of the message.
func (e *WorkflowError) Is(target error) bool {
	t, ok := target.(*WorkflowError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound            = &WorkflowError{Kind: KindNotFound, Message: "not found"}
	ErrAuthorization       = &WorkflowError{Kind: KindAuthorization, Message: "not authorized"}
	ErrInvalidState        = &WorkflowError{Kind: KindInvalidState, Message: "invalid state"}
	ErrDuplicateReview     = &WorkflowError{Kind: KindDuplicateReview, Message: "already reviewed"}
	ErrValidation          = &WorkflowError{Kind: KindValidation, Message: "validation failed"}
	ErrEditWindowExpired   = &WorkflowError{Kind: KindEditWindowExpired, Message: "edit window expired"}
	ErrVisibilityViolation = &WorkflowError{Kind: KindVisibilityViolated, Message: "review is already visible"}
)

func newError(kind ErrorKind, format string, args ...interface{}) *WorkflowError {
	return &WorkflowError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) error {
	return newError(KindNotFound, format, args...)
}

func unauthorized(format string, args ...interface{}) error {
	return newError(KindAuthorization, format, args...)
}

func invalidState(format string, args ...interface{}) error {
	return newError(KindInvalidState, format, args...)
}

func validationError(format string, args ...interface{}) error {
	return newError(KindValidation, format, args...)
}

// KindOf returns the kind of a wrapped WorkflowError, or "" for any other error.
func KindOf(err error) ErrorKind {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Kind
	}
	return ""
}
