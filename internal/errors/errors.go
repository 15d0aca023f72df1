// Package errors implements Tokudae's error taxonomy (spec section 7):
// SyntaxError, RuntimeError, MemoryError and ErrorInErrorHandler, each
// carrying a source location and an optional wrapped cause.
package errors

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// ErrorType distinguishes the four kinds of error the compiler pipeline
// and its collaborators can raise.
type ErrorType string

const (
	SyntaxErrorType          ErrorType = "SyntaxError"
	RuntimeErrorType         ErrorType = "RuntimeError"
	MemoryErrorType          ErrorType = "MemoryError"
	ErrorInErrorHandlerType  ErrorType = "ErrorInErrorHandler"
)

// memoryErrorSentinel is reused for every MemoryError so that raising one
// never itself allocates (spec: "reuses a preallocated error object to
// avoid re-allocation on propagation").
var memoryErrorSentinel = &TokudaeError{
	Type:    MemoryErrorType,
	Message: "not enough memory",
}

// errorInHandlerSentinel is the fixed message produced when a message
// handler itself faults.
var errorInHandlerSentinel = &TokudaeError{
	Type:    ErrorInErrorHandlerType,
	Message: "error in error handling",
}

// SourceLocation pinpoints a chunk/line/column triple.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

// StackFrame is one entry of a call stack snapshot attached to an error.
type StackFrame struct {
	Function string
	File     string
	Line     int
	Column   int
}

// TokudaeError is the error value that crosses the protected-call boundary
// (spec section 5/7). It wraps an optional cause with github.com/pkg/errors
// so %+v formatting and Cause() unwinding work the way the rest of the
// retrieved pack wraps driver/parse errors.
type TokudaeError struct {
	Type      ErrorType
	Message   string
	Location  SourceLocation
	CallStack []StackFrame
	Source    string
	cause     error
}

func (e *TokudaeError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s", e.Type, e.Message))
	if e.Location.File != "" {
		sb.WriteString(fmt.Sprintf("\n  at %s:%d:%d", e.Location.File, e.Location.Line, e.Location.Column))
		if e.Source != "" {
			sb.WriteString(fmt.Sprintf("\n  %d | %s", e.Location.Line, e.Source))
			if e.Location.Column > 0 {
				sb.WriteString("\n  " + strings.Repeat(" ", len(fmt.Sprintf("%d | ", e.Location.Line))+e.Location.Column-1) + "^")
			}
		}
	}
	for _, frame := range e.CallStack {
		if frame.Function != "" {
			sb.WriteString(fmt.Sprintf("\n  at %s (%s:%d:%d)", frame.Function, frame.File, frame.Line, frame.Column))
		} else {
			sb.WriteString(fmt.Sprintf("\n  at %s:%d:%d", frame.File, frame.Line, frame.Column))
		}
	}
	return sb.String()
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *TokudaeError) Unwrap() error { return e.cause }

// NewSyntaxError builds a SyntaxError at the given location — raised by the
// lexer, parser or undump on malformed input.
func NewSyntaxError(message, file string, line, column int) *TokudaeError {
	return &TokudaeError{
		Type:     SyntaxErrorType,
		Message:  message,
		Location: SourceLocation{File: file, Line: line, Column: column},
	}
}

// NewSyntaxErrorf is NewSyntaxError with Printf-style formatting; undump
// uses it for its "bad binary format: <reason>" messages.
func NewSyntaxErrorf(file string, line, column int, format string, args ...interface{}) *TokudaeError {
	return NewSyntaxError(fmt.Sprintf(format, args...), file, line, column)
}

// NewRuntimeError builds a RuntimeError — raised only via checklimit during
// parsing (capacity-exceeded conditions); the VM raises the rest.
func NewRuntimeError(message, file string, line, column int) *TokudaeError {
	return &TokudaeError{
		Type:     RuntimeErrorType,
		Message:  message,
		Location: SourceLocation{File: file, Line: line, Column: column},
	}
}

// MemoryError returns the shared, preallocated MemoryError sentinel.
func MemoryError() *TokudaeError { return memoryErrorSentinel }

// ErrorInErrorHandler returns the shared sentinel produced when a pcall
// message handler itself raises.
func ErrorInErrorHandler() *TokudaeError { return errorInHandlerSentinel }

// Wrap attaches cause to e using github.com/pkg/errors so the chain keeps
// a recoverable stack trace, mirroring how the rest of the retrieved pack
// wraps lower-level driver/syscall errors before surfacing them.
func (e *TokudaeError) Wrap(cause error) *TokudaeError {
	if cause != nil {
		e.cause = pkgerrors.WithStack(cause)
	}
	return e
}

// WithSource attaches the offending source line for pretty-printing.
func (e *TokudaeError) WithSource(source string) *TokudaeError {
	e.Source = source
	return e
}

// WithStack attaches a call stack snapshot.
func (e *TokudaeError) WithStack(stack []StackFrame) *TokudaeError {
	e.CallStack = stack
	return e
}

// AddStackFrame appends one frame, innermost call last.
func (e *TokudaeError) AddStackFrame(function, file string, line, column int) *TokudaeError {
	e.CallStack = append(e.CallStack, StackFrame{Function: function, File: file, Line: line, Column: column})
	return e
}

// Cause returns the root cause of err, unwinding any TokudaeError chain —
// a thin wrapper over pkgerrors.Cause kept here so callers don't need to
// import github.com/pkg/errors themselves.
func Cause(err error) error {
	for {
		te, ok := err.(*TokudaeError)
		if !ok || te.cause == nil {
			return pkgerrors.Cause(err)
		}
		err = pkgerrors.Cause(te.cause)
	}
}
