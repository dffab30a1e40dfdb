package model

import (
	"strings"
)

// Record is a view over one decoded row of a file. Cursors reuse a single
// Record and overwrite its row on every step, so a Record is only valid
// until the cursor advances. Use Clone to keep it longer.
type Record struct {
	fd    *FileDescriptor
	row   []string
	clean CleanOptions
}

// NewRecord creates an empty record bound to fd.
func NewRecord(fd *FileDescriptor, clean CleanOptions) *Record {
	return &Record{fd: fd, clean: clean}
}

// SetRow replaces the cells. The record takes ownership of row.
func (r *Record) SetRow(row []string) {
	r.row = row
}

// Row returns the raw cells.
func (r *Record) Row() []string {
	return r.row
}

// Descriptor returns the file the record was read from.
func (r *Record) Descriptor() *FileDescriptor {
	return r.fd
}

// RowType returns the row type of the record's file.
func (r *Record) RowType() Term {
	return r.fd.rowType
}

// RawID returns the identifier cell exactly as stored, which is the key
// files are sorted on. The boolean is false when the file has no
// identifier column or the row is too narrow to have one.
func (r *Record) RawID() (string, bool) {
	i := r.fd.idIndex
	if i < 0 || i >= len(r.row) {
		return "", false
	}
	return r.row[i], true
}

// ID returns the cleaned identifier, resolved like Value.
func (r *Record) ID() (string, bool) {
	raw, ok := r.RawID()
	if !ok {
		return "", false
	}
	if strings.TrimSpace(raw) == "" {
		if f, mapped := r.fd.idField(); mapped {
			return r.fallback(f)
		}
		return "", false
	}
	return Clean(raw, r.clean)
}

// Value returns the value of term. Unmapped terms, missing cells and
// values cleaned to null all report false.
func (r *Record) Value(term Term) (string, bool) {
	f, ok := r.fd.Field(term)
	if !ok {
		return "", false
	}
	return r.resolve(f)
}

// Values splits a multi-valued field on its delimiter, dropping blank
// parts. A single valued field yields at most one element.
func (r *Record) Values(term Term) []string {
	f, ok := r.fd.Field(term)
	if !ok {
		return nil
	}
	v, ok := r.resolve(f)
	if !ok {
		return nil
	}
	if f.Delimiter == "" {
		return []string{v}
	}
	parts := strings.Split(v, f.Delimiter)
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}

// Terms returns the terms the record can resolve.
func (r *Record) Terms() []Term {
	return r.fd.Terms()
}

func (r *Record) resolve(f Field) (string, bool) {
	if !f.HasIndex() {
		return r.fallback(f)
	}
	if f.Index >= len(r.row) {
		return "", false
	}
	raw := r.row[f.Index]
	if strings.TrimSpace(raw) == "" {
		return r.fallback(f)
	}
	return Clean(raw, r.clean)
}

// fallback returns the field default, cleaned the same way cell values are.
func (r *Record) fallback(f Field) (string, bool) {
	if f.Default == nil {
		return "", false
	}
	return Clean(*f.Default, r.clean)
}

// Clone returns a record that owns a copy of the cells.
func (r *Record) Clone() *Record {
	cp := &Record{fd: r.fd, clean: r.clean}
	cp.row = append(make([]string, 0, len(r.row)), r.row...)
	return cp
}

// copyFrom overwrites r with the contents of src, reusing r's buffer.
func (r *Record) copyFrom(src *Record) {
	r.fd = src.fd
	r.clean = src.clean
	r.row = append(r.row[:0], src.row...)
}
