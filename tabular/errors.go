package tabular

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRow indicates a row that cannot be split into fields
	ErrMalformedRow = errors.New("tabular: malformed row")
	// ErrUnsupportedEncoding indicates a character encoding with no decoder
	ErrUnsupportedEncoding = errors.New("tabular: unsupported encoding")
)

// RowError reports a row that was read but could not be decoded. Readers
// stay usable after returning one.
type RowError struct {
	// Line is the 1-based logical row number within the file part
	Line int64
	Err  error
}

// Error implements error.
func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

// Unwrap returns the underlying error.
func (e *RowError) Unwrap() error {
	return e.Err
}

// IsRowError reports whether err is a recoverable row decode error.
func IsRowError(err error) bool {
	var rowErr *RowError
	return errors.As(err, &rowErr)
}
