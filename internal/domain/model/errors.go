package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies orchestration failures.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindValidation        ErrorKind = "validation"
	KindConflict          ErrorKind = "conflict"
	KindDescriptor        ErrorKind = "descriptor"
	KindExecution         ErrorKind = "execution"
	KindTransport         ErrorKind = "transport"
	KindResourceExhausted ErrorKind = "resource_exhausted"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrDescriptor        = &Error{Kind: KindDescriptor}
	ErrExecution         = &Error{Kind: KindExecution}
	ErrTransport         = &Error{Kind: KindTransport}
	ErrResourceExhausted = &Error{Kind: KindResourceExhausted}
)

// Error is the orchestrator's typed error. Code is a stable message key
// (e.g. APP_ERROR_DOMAIN_REQUIRED_IF_EXPOSED) the API layer can translate.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind so callers can write errors.Is(err, model.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func NewNotFoundError(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func NewValidationError(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func NewConflictError(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// NewDescriptorError reports a broken app descriptor. These are bugs in the
// app definition, not something the user can fix from the install form.
func NewDescriptorError(urn AppUrn, err error) *Error {
	return &Error{
		Kind:    KindDescriptor,
		Code:    "APP_ERROR_INVALID_DESCRIPTOR",
		Message: fmt.Sprintf("app %s has an invalid descriptor, this is an issue with the app definition and should be reported to the app maintainer", urn),
		Err:     err,
	}
}

func NewExecutionError(message string, err error) *Error {
	return &Error{Kind: KindExecution, Code: "APP_ERROR_EXECUTION", Message: message, Err: err}
}

func NewTransportError(message string, err error) *Error {
	return &Error{Kind: KindTransport, Code: "QUEUE_ERROR_TRANSPORT", Message: message, Err: err}
}

func NewResourceExhaustedError(code, message string) *Error {
	return &Error{Kind: KindResourceExhausted, Code: code, Message: message}
}

// AppNotFound is the NotFound error for a missing app row.
func AppNotFound(urn AppUrn) *Error {
	return NewNotFoundError("APP_ERROR_APP_NOT_FOUND", fmt.Sprintf("app %s not found", urn))
}
