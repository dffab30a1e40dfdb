package dwca

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedFormat indicates an unsupported dump format
	ErrUnsupportedFormat = errors.New("dwca: unsupported output format")

	// ErrUnknownSortBackend indicates an Options.SortBackend with no sorter
	ErrUnknownSortBackend = errors.New("dwca: unknown sort backend")

	// ErrFileNotFound indicates a location that does not exist
	ErrFileNotFound = errors.New("dwca: file not found")
)

// ErrorContext provides context for where an error occurred
type ErrorContext struct {
	Operation string
	FilePath  string
	RowType   string
	Details   string
}

// NewErrorContext creates a new error context
func NewErrorContext(operation, filePath string) *ErrorContext {
	return &ErrorContext{
		Operation: operation,
		FilePath:  filePath,
	}
}

// WithRowType adds the row type of the file to the error
func (ec *ErrorContext) WithRowType(rowType string) *ErrorContext {
	ec.RowType = rowType
	return ec
}

// WithDetails adds details to the error context
func (ec *ErrorContext) WithDetails(details string) *ErrorContext {
	ec.Details = details
	return ec
}

// Error creates a formatted error with context
func (ec *ErrorContext) Error(baseErr error) error {
	var parts []string
	parts = append(parts, fmt.Sprintf("dwca: %s failed", ec.Operation))

	if ec.FilePath != "" {
		parts = append(parts, "file: "+ec.FilePath)
	}

	if ec.RowType != "" {
		parts = append(parts, "row type: "+ec.RowType)
	}

	if ec.Details != "" {
		parts = append(parts, "details: "+ec.Details)
	}

	context := strings.Join(parts, ", ")
	if baseErr != nil {
		return fmt.Errorf("%s: %w", context, baseErr)
	}
	return fmt.Errorf("%s", context)
}
