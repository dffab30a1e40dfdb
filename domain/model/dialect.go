package model

import (
	"fmt"
	"strings"
)

// Dialect defaults
const (
	// DefaultDelimiter is the field delimiter of the canonical form
	DefaultDelimiter = '\t'
	// DefaultLineTerminator is the canonical line terminator
	DefaultLineTerminator = "\n"
	// DefaultEncoding is the canonical character encoding
	DefaultEncoding = "UTF-8"
)

// Dialect describes how a delimited file is laid out on disk.
type Dialect struct {
	// Delimiter separates fields
	Delimiter rune
	// Quote encloses fields; zero means fields are never quoted
	Quote rune
	// LineTerminator ends a row and may be longer than one character
	LineTerminator string
	// Encoding is the IANA name of the character encoding
	Encoding string
	// HeaderLines is the number of leading rows to skip in each file part
	HeaderLines int
}

// DefaultDialect returns a tab separated, unquoted, UTF-8 dialect without
// header lines.
func DefaultDialect() Dialect {
	return Dialect{
		Delimiter:      DefaultDelimiter,
		LineTerminator: DefaultLineTerminator,
		Encoding:       DefaultEncoding,
	}
}

// CanonicalDialect is the layout of every derivative file written by the
// normalizer and the sorters.
func CanonicalDialect() Dialect {
	return DefaultDialect()
}

// CSVDialect returns the common comma separated, double quoted dialect with
// one header line.
func CSVDialect() Dialect {
	return Dialect{
		Delimiter:      ',',
		Quote:          '"',
		LineTerminator: "\n",
		Encoding:       DefaultEncoding,
		HeaderLines:    1,
	}
}

// WithHeaderLines returns a copy with a different header line count.
func (d Dialect) WithHeaderLines(n int) Dialect {
	d.HeaderLines = n
	return d
}

// WithEncoding returns a copy with a different encoding.
func (d Dialect) WithEncoding(encoding string) Dialect {
	d.Encoding = encoding
	return d
}

// NeedsNormalization reports whether files in this dialect must be
// rewritten to the canonical form before they can be sorted line by line.
func (d Dialect) NeedsNormalization() bool {
	return d.LineTerminator != DefaultLineTerminator || d.Quote != 0
}

// Validate checks the dialect for values no reader can work with.
func (d Dialect) Validate() error {
	if d.Delimiter == 0 {
		return fmt.Errorf("%w: delimiter is not set", ErrInvalidDialect)
	}
	if d.Quote != 0 && d.Quote == d.Delimiter {
		return fmt.Errorf("%w: quote and delimiter are both %q", ErrInvalidDialect, d.Delimiter)
	}
	if d.LineTerminator == "" {
		return fmt.Errorf("%w: line terminator is empty", ErrInvalidDialect)
	}
	if strings.ContainsRune(d.LineTerminator, d.Delimiter) {
		return fmt.Errorf("%w: line terminator contains the delimiter", ErrInvalidDialect)
	}
	if d.HeaderLines < 0 {
		return fmt.Errorf("%w: negative header line count %d", ErrInvalidDialect, d.HeaderLines)
	}
	if strings.TrimSpace(d.Encoding) == "" {
		return fmt.Errorf("%w: encoding is not set", ErrInvalidDialect)
	}
	return nil
}
