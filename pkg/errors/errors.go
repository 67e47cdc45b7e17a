package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType classifies domain errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeInternal   ErrorType = "internal"
)

// DomainError is the error type returned by every package of this module
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]string
}

func (e *DomainError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%s", k, e.Context[k])
		}
		sb.WriteString("]")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair and returns the same error for chaining
func (e *DomainError) WithContext(key, value string) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConflict, message, cause)
}

func NewPermissionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypePermission, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

// isType reports whether err, or anything it wraps, is a DomainError of the given type.
// Combined errors match when any member matches.
func isType(err error, errorType ErrorType) bool {
	for err != nil {
		if domainErr, ok := err.(*DomainError); ok && domainErr.Type == errorType {
			return true
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, member := range u.Unwrap() {
				if isType(member, errorType) {
					return true
				}
			}
			return false
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return false
		}
	}
	return false
}

func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }
func IsIOError(err error) bool         { return isType(err, ErrorTypeIO) }
func IsNotFoundError(err error) bool   { return isType(err, ErrorTypeNotFound) }
func IsConflictError(err error) bool   { return isType(err, ErrorTypeConflict) }
func IsPermissionError(err error) bool { return isType(err, ErrorTypePermission) }
func IsInternalError(err error) bool   { return isType(err, ErrorTypeInternal) }

// New is a passthrough to the standard library for plain sentinel errors
func New(text string) error {
	return stderrors.New(text)
}

// As is a passthrough to the standard library
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
