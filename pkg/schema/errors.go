package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeParse             = "PARSE_ERROR"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeBuild             = "BUILD_ERROR"
	ErrCodeUnknownNode       = "UNKNOWN_NODE"
	ErrCodeSubtreeCycle      = "SUBTREE_CYCLE"
	ErrCodeContractViolation = "CONTRACT_VIOLATION"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeStore             = "STORE_ERROR"
)

// Error is the structured error type for all arbor operations.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Node    string         `json:"node,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.Node, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches the name of the node the error refers to.
func (e *Error) WithNode(name string) *Error {
	e.Node = name
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}
