// Package tools provides the local tool implementations exposed to the model.
package tools

import "fmt"

// ToolErrorType provides structured errors for model retry logic.
type ToolErrorType string

const (
	ErrFileNotFound    ToolErrorType = "FILE_NOT_FOUND"
	ErrInvalidParams   ToolErrorType = "INVALID_PARAMS"
	ErrExecutionFailed ToolErrorType = "EXECUTION_FAILED"
	ErrBinaryFile      ToolErrorType = "BINARY_FILE"
)

// ToolError provides structured error information for retry logic.
type ToolError struct {
	Type    ToolErrorType `json:"type"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewToolError creates a new ToolError.
func NewToolError(errType ToolErrorType, message string) *ToolError {
	return &ToolError{Type: errType, Message: message}
}

// NewToolErrorf creates a new ToolError with formatted message.
func NewToolErrorf(errType ToolErrorType, format string, args ...interface{}) *ToolError {
	return &ToolError{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// formatToolError formats a ToolError for LLM consumption.
func formatToolError(err *ToolError) string {
	return fmt.Sprintf("Error [%s]: %s", err.Type, err.Message)
}

// OutputLimits caps the size of tool output returned to the model.
type OutputLimits struct {
	MaxLines int
	MaxBytes int64
}

// DefaultLimits returns the standard output limits.
func DefaultLimits() OutputLimits {
	return OutputLimits{
		MaxLines: 2000,
		MaxBytes: 256 * 1024,
	}
}
