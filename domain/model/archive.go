package model

import (
	"fmt"
)

// Archive is a core file plus any number of extension files whose rows
// point at core rows through their identifier column. It is read only once
// built and owns no open handles.
type Archive struct {
	core       *FileDescriptor
	extensions []*FileDescriptor
	metadata   string
}

// ArchiveOption configures an Archive.
type ArchiveOption func(*Archive)

// WithExtension adds an extension file.
func WithExtension(ext *FileDescriptor) ArchiveOption {
	return func(a *Archive) {
		a.extensions = append(a.extensions, ext)
	}
}

// WithMetadata records the location of the metadata document.
func WithMetadata(location string) ArchiveOption {
	return func(a *Archive) {
		a.metadata = location
	}
}

// NewArchive creates an archive around core.
func NewArchive(core *FileDescriptor, opts ...ArchiveOption) *Archive {
	a := &Archive{core: core}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Core returns the core file.
func (a *Archive) Core() *FileDescriptor {
	return a.core
}

// Extensions returns the extension files in declaration order.
func (a *Archive) Extensions() []*FileDescriptor {
	return append([]*FileDescriptor(nil), a.extensions...)
}

// Extension returns the extension of the given row type.
func (a *Archive) Extension(rowType Term) (*FileDescriptor, bool) {
	for _, ext := range a.extensions {
		if ext.rowType.Equal(rowType) {
			return ext, true
		}
	}
	return nil, false
}

// HasExtensions reports whether a join is needed at all.
func (a *Archive) HasExtensions() bool {
	return len(a.extensions) > 0
}

// Metadata returns the metadata document location, possibly empty.
func (a *Archive) Metadata() string {
	return a.metadata
}

// Validate applies the schema rules that must hold before streaming.
func (a *Archive) Validate() error {
	if a.core == nil {
		return ErrNoCore
	}
	if err := a.core.Validate(); err != nil {
		return fmt.Errorf("core: %w", err)
	}
	if a.HasExtensions() && !a.core.HasID() {
		return fmt.Errorf("%w: core %s is joined with extensions", ErrMissingID, a.core.rowType)
	}

	seen := make(map[string]bool, len(a.extensions))
	for _, ext := range a.extensions {
		if ext == nil {
			return fmt.Errorf("%w: nil extension", ErrNoLocation)
		}
		if err := ext.Validate(); err != nil {
			return fmt.Errorf("extension: %w", err)
		}
		if !ext.HasID() {
			return fmt.Errorf("%w: extension %s", ErrMissingID, ext.rowType)
		}
		key := ext.rowType.QualifiedName()
		if seen[key] {
			return fmt.Errorf("%w: %s", ErrDuplicateRowType, ext.rowType)
		}
		seen[key] = true
	}
	return nil
}

// Warnings lists schema problems that do not prevent reading.
func (a *Archive) Warnings() []string {
	var warnings []string
	if a.core != nil && !a.core.HasID() {
		warnings = append(warnings, fmt.Sprintf("core %s has no identifier column", a.core.rowType))
	}
	return warnings
}
