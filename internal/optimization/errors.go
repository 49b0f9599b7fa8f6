package optimization

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures an optimization call can report.
type ErrorKind int

const (
	// KindUnknown is the zero kind, used by errors that were not classified.
	KindUnknown ErrorKind = iota
	// KindInvalidObjective means the objective is missing or cannot be called.
	KindInvalidObjective
	// KindInvalidDomain means the domain is empty, malformed, non-numeric,
	// inverted, or has non-integral bounds on an integer dimension.
	KindInvalidDomain
	// KindInvalidOptions means an option has the wrong type or is out of range.
	KindInvalidOptions
	// KindObjectiveError means an objective invocation failed, panicked, or
	// returned a non-finite value.
	KindObjectiveError
	// KindSearchError means the global search procedure failed or broke its
	// contract (for example by proposing a point outside the domain).
	KindSearchError
	// KindCanceled means the caller's context ended the run.
	KindCanceled
)

var kindNames = map[ErrorKind]string{
	KindUnknown:          "unknown",
	KindInvalidObjective: "invalid_objective",
	KindInvalidDomain:    "invalid_domain",
	KindInvalidOptions:   "invalid_options",
	KindObjectiveError:   "objective_error",
	KindSearchError:      "search_error",
	KindCanceled:         "canceled",
}

// String returns the snake_case name of the kind.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinels for errors.Is. Only the Kind of a sentinel is compared.
var (
	ErrInvalidObjective = &Error{Kind: KindInvalidObjective, Message: "invalid objective"}
	ErrInvalidDomain    = &Error{Kind: KindInvalidDomain, Message: "invalid domain"}
	ErrInvalidOptions   = &Error{Kind: KindInvalidOptions, Message: "invalid options"}
	ErrObjective        = &Error{Kind: KindObjectiveError, Message: "objective error"}
	ErrSearch           = &Error{Kind: KindSearchError, Message: "search procedure error"}
	ErrCanceled         = &Error{Kind: KindCanceled, Message: "optimization canceled"}
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Kind classifies the error.
	Kind ErrorKind
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	msg := e.Message
	if e.Kind != KindUnknown {
		msg = fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, msg)
	}
	return msg
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same, known kind. It lets
// errors.Is match any error against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Kind != KindUnknown && e.Kind == t.Kind
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewErrorf creates a new unclassified optimization error with formatted message.
func NewErrorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
	}
}

// NewKindErrorf creates an error of the given kind with a formatted message.
func NewKindErrorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// WrapKindErrorf wraps err in an error of the given kind.
// If err is nil, WrapKindErrorf returns nil.
func WrapKindErrorf(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsOptimizationError checks if an error is, or wraps, an *Error.
// If so, it returns the outermost one and true.
func IsOptimizationError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the outermost classified *Error in err's chain,
// or KindUnknown.
func KindOf(err error) ErrorKind {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return KindUnknown
		}
		if e.Kind != KindUnknown {
			return e.Kind
		}
		err = e.Err
	}
	return KindUnknown
}
