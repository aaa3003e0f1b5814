// Package errz defines the structured errors reported by the assembler and
// the virtual machine.
package errz

import (
	"errors"
	"fmt"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// ErrRuntime indicates a general runtime error, including errors raised
	// by scripts through the runtimeError native.
	ErrRuntime ErrorKind = iota
	// ErrCompile indicates source that could not be compiled.
	ErrCompile
	// ErrType indicates a type mismatch or invalid operation on a type.
	ErrType
	// ErrName indicates an undefined variable or property.
	ErrName
	// ErrArity indicates a call with the wrong number of arguments.
	ErrArity
	// ErrStackOverflow indicates the frame stack is full.
	ErrStackOverflow
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrRuntime:
		return "runtime error"
	case ErrCompile:
		return "compile error"
	case ErrType:
		return "type error"
	case ErrName:
		return "name error"
	case ErrArity:
		return "arity error"
	case ErrStackOverflow:
		return "stack overflow"
	default:
		return "error"
	}
}

// StructuredError carries a message, a category, the source location of
// the failing instruction and an innermost-first backtrace.
type StructuredError struct {
	Message  string
	Kind     ErrorKind
	Location SourceLocation
	Stack    []StackFrame
	Cause    error
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Location.IsZero() {
		return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind.String(), e.Message, e.Location)
}

// Unwrap returns the underlying cause of the error.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// NewStructuredError creates a new StructuredError with the given parameters.
func NewStructuredError(kind ErrorKind, message string, loc SourceLocation, stack []StackFrame) *StructuredError {
	return &StructuredError{
		Message:  message,
		Kind:     kind,
		Location: loc,
		Stack:    stack,
	}
}

// NewStructuredErrorf creates a new StructuredError with a formatted message.
func NewStructuredErrorf(kind ErrorKind, loc SourceLocation, stack []StackFrame, format string, args ...any) *StructuredError {
	return &StructuredError{
		Message:  fmt.Sprintf(format, args...),
		Kind:     kind,
		Location: loc,
		Stack:    stack,
	}
}

// WithCause wraps the error with a cause.
func (e *StructuredError) WithCause(cause error) *StructuredError {
	e.Cause = cause
	return e
}

// As returns the first StructuredError in err's chain.
func As(err error) (*StructuredError, bool) {
	var structured *StructuredError
	if errors.As(err, &structured) {
		return structured, true
	}
	return nil, false
}

// KindOf returns the kind of the first StructuredError in err's chain. Plain
// errors are runtime errors.
func KindOf(err error) ErrorKind {
	if structured, ok := As(err); ok {
		return structured.Kind
	}
	return ErrRuntime
}
