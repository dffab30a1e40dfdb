// Package model provides domain model for dwca
package model

import (
	"fmt"
	"strings"
)

// FileDescriptor describes one logical delimited file of an archive: its
// row type, dialect, on-disk parts and field mapping. A FileDescriptor is
// immutable once built and is shared by every record read from it.
type FileDescriptor struct {
	rowType   Term
	dialect   Dialect
	locations []string
	idIndex   int
	fields    []Field
	byTerm    map[string]int
	maxIndex  int
}

// FileOption configures a FileDescriptor.
type FileOption func(*FileDescriptor)

// WithDialect sets the file dialect. DefaultDialect is used otherwise.
func WithDialect(d Dialect) FileOption {
	return func(fd *FileDescriptor) {
		fd.dialect = d
	}
}

// WithIDIndex sets the identifier column.
func WithIDIndex(index int) FileOption {
	return func(fd *FileDescriptor) {
		fd.idIndex = index
	}
}

// WithFields adds field mappings. A later mapping of the same term replaces
// an earlier one.
func WithFields(fields ...Field) FileOption {
	return func(fd *FileDescriptor) {
		fd.fields = append(fd.fields, fields...)
	}
}

// NewFileDescriptor creates a descriptor for rows of rowType stored in the
// given locations, which are read in order as one file.
func NewFileDescriptor(rowType Term, locations []string, opts ...FileOption) *FileDescriptor {
	fd := &FileDescriptor{
		rowType:   rowType,
		dialect:   DefaultDialect(),
		locations: append([]string(nil), locations...),
		idIndex:   NoIndex,
	}
	for _, opt := range opts {
		opt(fd)
	}
	fd.index()
	return fd
}

// index builds the term lookup and drops shadowed mappings.
func (fd *FileDescriptor) index() {
	fd.byTerm = make(map[string]int, len(fd.fields))
	fields := make([]Field, 0, len(fd.fields))
	for _, f := range fd.fields {
		key := f.Term.QualifiedName()
		if i, ok := fd.byTerm[key]; ok {
			fields[i] = f
			continue
		}
		fd.byTerm[key] = len(fields)
		fields = append(fields, f)
	}
	fd.fields = fields

	fd.maxIndex = fd.idIndex
	for _, f := range fd.fields {
		if f.Index > fd.maxIndex {
			fd.maxIndex = f.Index
		}
	}
}

// RowType returns the kind of entity this file's rows represent.
func (fd *FileDescriptor) RowType() Term {
	return fd.rowType
}

// Dialect returns the file dialect.
func (fd *FileDescriptor) Dialect() Dialect {
	return fd.dialect
}

// Locations returns a copy of the file part paths.
func (fd *FileDescriptor) Locations() []string {
	return append([]string(nil), fd.locations...)
}

// Location returns the first part, which names derivative files.
func (fd *FileDescriptor) Location() string {
	if len(fd.locations) == 0 {
		return ""
	}
	return fd.locations[0]
}

// IDIndex returns the identifier column or NoIndex.
func (fd *FileDescriptor) IDIndex() int {
	return fd.idIndex
}

// HasID reports whether the file has an identifier column.
func (fd *FileDescriptor) HasID() bool {
	return fd.idIndex >= 0
}

// Field returns the mapping of term.
func (fd *FileDescriptor) Field(term Term) (Field, bool) {
	i, ok := fd.byTerm[term.QualifiedName()]
	if !ok {
		return Field{}, false
	}
	return fd.fields[i], true
}

// Fields returns the mappings in declaration order.
func (fd *FileDescriptor) Fields() []Field {
	return append([]Field(nil), fd.fields...)
}

// Terms returns the mapped terms in declaration order.
func (fd *FileDescriptor) Terms() []Term {
	terms := make([]Term, len(fd.fields))
	for i, f := range fd.fields {
		terms[i] = f.Term
	}
	return terms
}

// idField returns the mapping that reads the identifier column, if any.
func (fd *FileDescriptor) idField() (Field, bool) {
	if fd.idIndex < 0 {
		return Field{}, false
	}
	for _, f := range fd.fields {
		if f.Index == fd.idIndex {
			return f, true
		}
	}
	return Field{}, false
}

// MaxIndex returns the largest column index referenced, or NoIndex.
func (fd *FileDescriptor) MaxIndex() int {
	return fd.maxIndex
}

// WithLocations returns a copy reading from other parts, used when rows
// are served from a derivative file.
func (fd *FileDescriptor) WithLocations(locations []string, d Dialect) *FileDescriptor {
	cp := *fd
	cp.locations = append([]string(nil), locations...)
	cp.dialect = d
	return &cp
}

// Validate checks the descriptor on its own. Join specific rules are
// applied by Archive.Validate.
func (fd *FileDescriptor) Validate() error {
	if len(fd.locations) == 0 {
		return fmt.Errorf("%w: %s", ErrNoLocation, fd.rowType)
	}
	for _, loc := range fd.locations {
		if strings.TrimSpace(loc) == "" {
			return fmt.Errorf("%w: %s has an empty location", ErrNoLocation, fd.rowType)
		}
	}
	if err := fd.dialect.Validate(); err != nil {
		return fmt.Errorf("%s: %w", fd.rowType, err)
	}
	if fd.idIndex < NoIndex {
		return fmt.Errorf("%w: %s identifier column %d", ErrInvalidField, fd.rowType, fd.idIndex)
	}
	for _, f := range fd.fields {
		if f.Index < NoIndex {
			return fmt.Errorf("%w: %s column %d", ErrInvalidField, f.Term, f.Index)
		}
	}
	return nil
}
