// Package errors provides the coded error type shared by every layer of
// KeyConcept.  Domain, application, infrastructure and interface code all
// report failures as *AppError so that HTTP/gRPC responses, log entries and
// metric labels can be derived from a single ErrorCode.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// stackDepth bounds the number of frames recorded per error.
const stackDepth = 32

// captureStack renders the call stack above New/Wrap.  Runtime frames are
// dropped to keep the trace short.
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// AppError
// ─────────────────────────────────────────────────────────────────────────────

// AppError is the structured error carried across KeyConcept's layers.  It
// supports errors.Is / errors.As through Unwrap.
//
//	return errors.New(errors.ErrCodeOntologyUnreadable, "cannot open ontology.yaml")
//	return errors.Wrap(err, errors.ErrCodeIndexBuildFailed, "build concept index")
//	return errors.InvalidParam("text must not be empty").WithDetail("endpoint=/extract")
type AppError struct {
	// Code classifies the failure.
	Code ErrorCode

	// Message is safe to return to API callers.
	Message string

	// Detail holds debugging context such as identifiers or sizes.
	Detail string

	// Cause is the wrapped lower-level error, if any.
	Cause error

	// Stack is the call stack at construction time.  It never appears in
	// Error(); logging middleware reads it directly.
	Stack string
}

// Error renders "[CODE] message: detail"; the detail segment is omitted
// when empty, and the cause is appended after an arrow when present.
func (e *AppError) Error() string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(e.Code.String())
	sb.WriteString("] ")
	sb.WriteString(e.Message)
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Cause != nil {
		sb.WriteString(" -> ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail returns a copy of e carrying detail.  Nil-safe.
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a copy of e wrapping err.  Nil-safe.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// ─────────────────────────────────────────────────────────────────────────────
// Factories
// ─────────────────────────────────────────────────────────────────────────────

// New constructs an AppError with a captured stack.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Newf is New with fmt.Sprintf formatting of the message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(1),
	}
}

// Wrap attaches err as the cause of a new AppError.  A nil err yields nil so
// Wrap can be used inline on return paths.  Passing CodeUnknown keeps the
// code of the first AppError already in err's chain.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == CodeUnknown {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		}
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(1),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Inspection
// ─────────────────────────────────────────────────────────────────────────────

// IsCode reports whether any AppError in err's chain has the given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var ae *AppError
		if !errors.As(err, &ae) {
			return false
		}
		if ae.Code == code {
			return true
		}
		err = ae.Cause
	}
	return false
}

// IsNotFound reports whether err's chain carries any not-found code.
func IsNotFound(err error) bool {
	for err != nil {
		var ae *AppError
		if !errors.As(err, &ae) {
			return false
		}
		switch ae.Code {
		case ErrCodeNotFound, ErrCodeConceptNotFound, ErrCodeDocumentNotFound, ErrCodeReportNotFound:
			return true
		}
		err = ae.Cause
	}
	return false
}

// IsValidation reports whether err's chain carries a client input error.
func IsValidation(err error) bool {
	return IsCode(err, ErrCodeBadRequest) || IsCode(err, ErrCodeValidation)
}

// GetCode returns the code of the first AppError in err's chain, CodeOK for
// nil and CodeUnknown for foreign errors.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// ─────────────────────────────────────────────────────────────────────────────
// Shortcuts
// ─────────────────────────────────────────────────────────────────────────────

// NotFound constructs an ErrCodeNotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message, Stack: captureStack(1)}
}

// InvalidParam constructs an ErrCodeBadRequest error.
func InvalidParam(message string) *AppError {
	return &AppError{Code: ErrCodeBadRequest, Message: message, Stack: captureStack(1)}
}

// Unauthorized constructs an ErrCodeUnauthorized error.
func Unauthorized(message string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: message, Stack: captureStack(1)}
}

// Forbidden constructs an ErrCodeForbidden error.
func Forbidden(message string) *AppError {
	return &AppError{Code: ErrCodeForbidden, Message: message, Stack: captureStack(1)}
}

// Internal constructs an ErrCodeInternal error.  Log the underlying cause
// separately; Internal carries none.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, Stack: captureStack(1)}
}

// Unavailable constructs an ErrCodeServiceUnavailable error.
func Unavailable(message string) *AppError {
	return &AppError{Code: ErrCodeServiceUnavailable, Message: message, Stack: captureStack(1)}
}
