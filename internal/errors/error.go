package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/vango-dev/params/pkg/params"
	"github.com/vango-dev/params/pkg/session"
)

// Category represents the type of error.
type Category string

const (
	CategoryLookup     Category = "lookup"
	CategoryConversion Category = "conversion"
	CategoryConfig     Category = "config"
	CategoryCLI        Category = "cli"
	CategorySession    Category = "session"
	CategoryServer     Category = "server"
)

// CodedError is a structured error with a stable code, an explanation and a
// fix suggestion, for display on a terminal or as JSON.
type CodedError struct {
	// Code is a unique error identifier (e.g., "P001").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Source names the input the error came from, such as a config file
	// path or a query string.
	Source string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *CodedError) WithSuggestion(s string) *CodedError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *CodedError) WithDetail(d string) *CodedError {
	e.Detail = d
	return e
}

// WithSource records where the failing input came from.
func (e *CodedError) WithSource(source string) *CodedError {
	e.Source = source
	return e
}

// Wrap wraps another error.
func (e *CodedError) Wrap(err error) *CodedError {
	e.Wrapped = err
	return e
}

// New creates a CodedError from a registered error code.
func New(code string) *CodedError {
	template, ok := registry[code]
	if !ok {
		return &CodedError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &CodedError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new CodedError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *CodedError {
	return &CodedError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError converts err into a CodedError. Errors from the params and
// session packages get their own codes and details; anything else is
// wrapped under fallbackCode.
func FromError(err error, fallbackCode string) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if stderrors.As(err, &ce) {
		return ce
	}

	var lookup *params.LookupError
	var conv *params.ConversionError
	switch {
	case stderrors.As(err, &conv):
		return New(CodeConversion).Wrap(err).
			WithDetail(fmt.Sprintf("The value %q given for %q is not a valid %s.", conv.Raw, conv.Key, conv.Kind))
	case stderrors.As(err, &lookup):
		detail := fmt.Sprintf("No parameter named %q is registered on this page.", lookup.Key)
		if lookup.Source == "session" {
			detail = fmt.Sprintf("The session holds no widget value for %q.", lookup.Key)
		}
		return New(CodeLookup).Wrap(err).WithDetail(detail)
	case stderrors.Is(err, params.ErrTypeMismatch):
		return New(CodeTypeMismatch).Wrap(err)
	case stderrors.Is(err, params.ErrCorruptState):
		return New(CodeCorruptState).Wrap(err)
	case stderrors.Is(err, session.ErrTooManySessionsFromIP):
		return New(CodeSessionLimit).Wrap(err)
	case stderrors.Is(err, session.ErrManagerStopped):
		return New(CodeShuttingDown).Wrap(err)
	}
	return New(fallbackCode).Wrap(err)
}
